package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
)

// memoryRepo assigns ids and keeps rows in memory.
type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	customers []model.Customer
	usage     []model.UsageMetric
	events    []model.ChurnEvent
	usageErr  error
}

func (m *memoryRepo) InsertCustomers(_ context.Context, customers []model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range customers {
		m.nextID++
		customers[i].CustomerID = m.nextID
	}
	m.customers = append(m.customers, customers...)
	return nil
}

func (m *memoryRepo) InsertChurnEvents(_ context.Context, events []model.ChurnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memoryRepo) InsertUsage(_ context.Context, usage []model.UsageMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usageErr != nil {
		return m.usageErr
	}
	m.usage = append(m.usage, usage...)
	return nil
}

func TestSeed_WritesEveryEntity(t *testing.T) {
	repo := &memoryRepo{}
	opts := SeedOptions{Customers: 25, Months: 3, ChurnRate: 0.5, BatchSize: 10, Concurrency: 3, Seed: 1}

	require.NoError(t, seed(context.Background(), repo, opts))

	assert.Len(t, repo.customers, 25)
	assert.Len(t, repo.usage, 25*3)
	assert.LessOrEqual(t, len(repo.events), 25)

	seen := make(map[int64]bool)
	for _, e := range repo.events {
		assert.False(t, seen[e.CustomerID], "at most one churn event per customer")
		seen[e.CustomerID] = true
		assert.True(t, e.CustomerID >= 1 && e.CustomerID <= 25)
	}
}

func TestSeed_ReportsWorkerErrors(t *testing.T) {
	boom := errors.New("disk full")
	repo := &memoryRepo{usageErr: boom}
	opts := SeedOptions{Customers: 5, Months: 1, ChurnRate: 0.1, BatchSize: 5, Concurrency: 1, Seed: 2}

	err := seed(context.Background(), repo, opts)
	assert.ErrorIs(t, err, boom)
}

func TestChurnProbability(t *testing.T) {
	cheap := 50.0
	pricey := 120.0
	annual := model.Customer{ContractLength: "Annual", MonthlyCharges: &cheap}
	monthly := model.Customer{ContractLength: "Monthly", MonthlyCharges: &pricey}

	assert.InDelta(t, 0.1, churnProbability(annual, 20, 0.25), 1e-12)
	assert.InDelta(t, 0.25*1.6*1.3*1.5, churnProbability(monthly, 5, 0.25), 1e-12)
	assert.Equal(t, 0.95, churnProbability(monthly, 5, 1))
}

func TestNewCustomer_CodesAreUnique(t *testing.T) {
	faker := gofakeit.New(3)
	codes := bloom.NewWithEstimates(500, 0.001)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		c := newCustomer(faker, codes)
		assert.False(t, seen[c.CustomerCode], c.CustomerCode)
		seen[c.CustomerCode] = true
	}
}
