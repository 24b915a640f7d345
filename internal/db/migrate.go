package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/qanotai/qanotai-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Migrate runs schema migrations and seeds the plan catalog and the
// starter question bank.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.User{},
		&models.Plan{},
		&models.Subscription{},
		&models.Payment{},
		&models.UsageQuota{},
		&models.Question{},
		&models.TestAttempt{},
		&models.TestResponse{},
		&models.DailyProgress{},
		&models.Achievement{},
		&models.LeaderboardEntry{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	for _, index := range extraIndexes {
		if errIndex := conn.Exec(index.sql).Error; errIndex != nil {
			return fmt.Errorf("db: create %s: %w", index.name, errIndex)
		}
	}

	if errSeed := ensureDefaultPlans(conn); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureDefaultQuestions(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// extraIndexes lists composite indexes AutoMigrate does not create.
var extraIndexes = []struct {
	name string
	sql  string
}{
	{
		name: "idx_payments_user_id_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_payments_user_id_created_at
			ON payments (user_id, created_at DESC)
		`,
	},
	{
		name: "idx_payments_status_created_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_payments_status_created_at
			ON payments (status, created_at DESC)
		`,
	},
	{
		name: "idx_subscriptions_user_id_status",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id_status
			ON subscriptions (user_id, status)
		`,
	},
	{
		name: "idx_daily_progress_date",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_daily_progress_date
			ON daily_progresses (date)
		`,
	},
	{
		name: "idx_leaderboard_period_rank",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_leaderboard_period_rank
			ON leaderboard_entries (period, period_start, rank)
		`,
	},
	{
		name: "idx_test_attempts_user_id_started_at",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_test_attempts_user_id_started_at
			ON test_attempts (user_id, started_at DESC)
		`,
	},
}

// seedQuestion describes one starter question-bank entry.
type seedQuestion struct {
	Part       int
	Topic      string
	Text       string
	CueCard    []string
	FollowUps  []string
	Difficulty string
}

// defaultQuestions is the starter question bank, one block per
// speaking part. Operators extend it through the admin API.
var defaultQuestions = []seedQuestion{
	{Part: 1, Topic: "Technology", Text: "Do you like using technology in your daily life?", Difficulty: "easy"},
	{Part: 1, Topic: "Technology", Text: "How often do you use social media?", Difficulty: "easy"},
	{Part: 1, Topic: "Daily Life", Text: "How do you usually spend your weekends?", Difficulty: "easy"},
	{Part: 1, Topic: "Daily Life", Text: "What's your favorite way to relax?", Difficulty: "easy"},
	{Part: 1, Topic: "Health", Text: "How important is exercise to you?", Difficulty: "easy"},
	{Part: 1, Topic: "Habits", Text: "Do you enjoy reading books?", Difficulty: "easy"},
	{Part: 1, Topic: "Habits", Text: "What kind of music do you like?", Difficulty: "easy"},
	{Part: 1, Topic: "Shopping", Text: "Do you prefer shopping online or in stores?", Difficulty: "easy"},
	{
		Part:       2,
		Topic:      "Technology",
		Text:       "Describe a piece of technology that you find useful.",
		CueCard:    []string{"what it is", "how you use it", "how often you use it", "and explain why you find it useful"},
		Difficulty: "medium",
	},
	{
		Part:       2,
		Topic:      "Environment",
		Text:       "Describe an environmental problem in your area.",
		CueCard:    []string{"what it is", "what causes it", "how it affects people", "and suggest what could be done about it"},
		Difficulty: "medium",
	},
	{
		Part:       2,
		Topic:      "Education",
		Text:       "Describe a teacher who influenced you.",
		CueCard:    []string{"who this teacher was", "what subject they taught", "what made them special", "and explain how they influenced you"},
		Difficulty: "medium",
	},
	{
		Part:       2,
		Topic:      "Work",
		Text:       "Describe your ideal job.",
		CueCard:    []string{"what it would be", "what skills you would need", "what you would do in this job", "and explain why this would be your ideal job"},
		Difficulty: "medium",
	},
	{
		Part:       3,
		Topic:      "Education",
		Text:       "How do you think technology will change education in the future?",
		FollowUps:  []string{"Is online learning as effective as traditional classroom learning?", "Do you think the education system in your country needs reform?"},
		Difficulty: "hard",
	},
	{
		Part:       3,
		Topic:      "Environment",
		Text:       "What are the main environmental challenges facing your country?",
		FollowUps:  []string{"What role should governments play in protecting the environment?"},
		Difficulty: "hard",
	},
	{
		Part:       3,
		Topic:      "Work",
		Text:       "What skills will be most important for workers in the future?",
		FollowUps:  []string{"What are the advantages and disadvantages of working from home?", "How has the concept of work-life balance changed in recent years?"},
		Difficulty: "hard",
	},
	{
		Part:       3,
		Topic:      "Health",
		Text:       "How can governments encourage people to live healthier lifestyles?",
		Difficulty: "hard",
	},
}

// ensureDefaultQuestions seeds the starter bank when the table is
// empty. A populated bank is never touched.
func ensureDefaultQuestions(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Question{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("db: count questions: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	for _, seed := range defaultQuestions {
		question := models.Question{
			Part:       seed.Part,
			Topic:      seed.Topic,
			Text:       seed.Text,
			Difficulty: seed.Difficulty,
			IsEnabled:  true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if len(seed.CueCard) > 0 {
			cueCard, errMarshal := json.Marshal(seed.CueCard)
			if errMarshal != nil {
				return fmt.Errorf("db: marshal cue card: %w", errMarshal)
			}
			question.CueCard = datatypes.JSON(cueCard)
		}
		if len(seed.FollowUps) > 0 {
			followUps, errMarshal := json.Marshal(seed.FollowUps)
			if errMarshal != nil {
				return fmt.Errorf("db: marshal follow ups: %w", errMarshal)
			}
			question.FollowUps = datatypes.JSON(followUps)
		}
		if errCreate := conn.Create(&question).Error; errCreate != nil {
			return fmt.Errorf("db: seed question: %w", errCreate)
		}
	}
	return nil
}

// seedPlan describes one default catalog entry.
type seedPlan struct {
	Tier             string
	Name             string
	PriceUZS         int64
	MonthlyTestLimit int
	DurationDays     int
	Description      string
	Features         []string
	SortOrder        int
}

// defaultPlans is the seeded catalog. Prices are UZS per month except
// lifetime, which is a one-time purchase.
var defaultPlans = []seedPlan{
	{
		Tier:             models.PlanTierFree,
		Name:             "Free",
		PriceUZS:         0,
		MonthlyTestLimit: 3,
		DurationDays:     0,
		Description:      "3 practice tests per month",
		Features:         []string{"3 tests per month", "Basic scoring", "Simple feedback"},
		SortOrder:        0,
	},
	{
		Tier:             models.PlanTierBasic,
		Name:             "Basic",
		PriceUZS:         29000,
		MonthlyTestLimit: 50,
		DurationDays:     30,
		Description:      "50 practice tests per month",
		Features:         []string{"50 tests per month", "Detailed band scores", "Progress tracking"},
		SortOrder:        1,
	},
	{
		Tier:             models.PlanTierStandard,
		Name:             "Standard",
		PriceUZS:         49000,
		MonthlyTestLimit: 150,
		DurationDays:     30,
		Description:      "150 practice tests per month",
		Features:         []string{"150 tests per month", "Detailed band scores", "Progress tracking", "Leaderboards"},
		SortOrder:        2,
	},
	{
		Tier:             models.PlanTierPremium,
		Name:             "Premium",
		PriceUZS:         79000,
		MonthlyTestLimit: 0,
		DurationDays:     30,
		Description:      "Unlimited practice tests",
		Features:         []string{"Unlimited tests", "Priority AI scoring", "Advanced analytics", "Leaderboards"},
		SortOrder:        3,
	},
	{
		Tier:             models.PlanTierLifetime,
		Name:             "Lifetime",
		PriceUZS:         990000,
		MonthlyTestLimit: 0,
		DurationDays:     0,
		Description:      "Unlimited practice tests, forever",
		Features:         []string{"Everything in Premium", "One-time payment", "Lifetime access"},
		SortOrder:        4,
	},
}

// ensureDefaultPlans inserts missing catalog rows. Existing rows are
// left untouched so operator price edits survive restarts.
func ensureDefaultPlans(conn *gorm.DB) error {
	for _, seed := range defaultPlans {
		var count int64
		if errCount := conn.Model(&models.Plan{}).Where("tier = ?", seed.Tier).Count(&count).Error; errCount != nil {
			return fmt.Errorf("db: count plan %s: %w", seed.Tier, errCount)
		}
		if count > 0 {
			continue
		}

		features, errMarshal := json.Marshal(seed.Features)
		if errMarshal != nil {
			return fmt.Errorf("db: marshal plan features: %w", errMarshal)
		}

		now := time.Now().UTC()
		plan := models.Plan{
			Tier:             seed.Tier,
			Name:             seed.Name,
			PriceUZS:         seed.PriceUZS,
			Description:      seed.Description,
			MonthlyTestLimit: seed.MonthlyTestLimit,
			DurationDays:     seed.DurationDays,
			Features:         datatypes.JSON(features),
			SortOrder:        seed.SortOrder,
			IsEnabled:        true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if errCreate := conn.Create(&plan).Error; errCreate != nil {
			return fmt.Errorf("db: seed plan %s: %w", seed.Tier, errCreate)
		}
	}
	return nil
}
