package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/EduPortal/app/models"
	"github.com/ManuelReschke/EduPortal/app/repository"
)

const (
	CacheKeyMembership = "eduportal:statistics:membership"
	CacheExpiration    = 5 * time.Minute
)

// MembershipStats is the operator overview of plans and revenue.
type MembershipStats struct {
	Plans        []repository.PlanCount  `json:"plans"`
	ActiveByPlan map[string]int64        `json:"active_by_plan"`
	RevenueToday []repository.RevenueSum `json:"revenue_today"`
	RevenueMonth []repository.RevenueSum `json:"revenue_month"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// Service computes MembershipStats and keeps the last result in Redis.
type Service struct {
	profiles     repository.ProfileRepository
	transactions repository.TransactionRepository
	cache        *redis.Client
	ttl          time.Duration
	now          func() time.Time
}

// NewService builds the service. client may be nil, then every call hits the database.
func NewService(profiles repository.ProfileRepository, transactions repository.TransactionRepository, client *redis.Client) *Service {
	return &Service{
		profiles:     profiles,
		transactions: transactions,
		cache:        client,
		ttl:          CacheExpiration,
		now:          time.Now,
	}
}

// GetMembershipStats returns cached statistics, computing them on a miss.
func (s *Service) GetMembershipStats(ctx context.Context) (*MembershipStats, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}
	stats, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, stats)
	return stats, nil
}

// Compute reads fresh statistics from the repositories.
func (s *Service) Compute(ctx context.Context) (*MembershipStats, error) {
	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	plans, err := s.profiles.CountByPlan(ctx)
	if err != nil {
		return nil, err
	}
	today, err := s.transactions.SumCompleted(ctx, dayStart)
	if err != nil {
		return nil, err
	}
	month, err := s.transactions.SumCompleted(ctx, monthStart)
	if err != nil {
		return nil, err
	}

	if plans == nil {
		plans = []repository.PlanCount{}
	}
	active := map[string]int64{}
	for _, pc := range plans {
		if pc.Status == models.MembershipStatusActive {
			active[pc.Plan] += pc.Count
		}
	}
	return &MembershipStats{
		Plans:        plans,
		ActiveByPlan: active,
		RevenueToday: today,
		RevenueMonth: month,
		GeneratedAt:  now,
	}, nil
}

// Invalidate drops the cached statistics.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, CacheKeyMembership).Err()
}

func (s *Service) fromCache(ctx context.Context) (*MembershipStats, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, CacheKeyMembership).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Cache] statistics read failed: %v", err)
		}
		return nil, false
	}
	var stats MembershipStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Warnf("[Cache] dropping unreadable statistics: %v", err)
		return nil, false
	}
	return &stats, true
}

func (s *Service) store(ctx context.Context, stats *MembershipStats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, CacheKeyMembership, raw, s.ttl).Err(); err != nil {
		log.Warnf("[Cache] statistics write failed: %v", err)
	}
}
