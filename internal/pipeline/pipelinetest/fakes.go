// Package pipelinetest provides in-memory collaborators for pipeline and
// handler tests.
package pipelinetest

import (
	"context"
	"sync"

	"tiergate/internal/models"
	"tiergate/internal/providers"
	"tiergate/internal/store"
)

// Policies is an in-memory user and system policy store.
type Policies struct {
	mu     sync.Mutex
	Users  map[string]*models.UserPolicy
	System *models.SystemPolicy
}

func NewPolicies(system *models.SystemPolicy, users ...*models.UserPolicy) *Policies {
	p := &Policies{Users: map[string]*models.UserPolicy{}, System: system}
	for _, u := range users {
		p.Users[u.UserID] = u
	}
	return p
}

func (p *Policies) GetUserPolicy(_ context.Context, userID string) (*models.UserPolicy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.Users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (p *Policies) GetUserPolicyByTokenHash(_ context.Context, hash string) (*models.UserPolicy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.Users {
		if u.TokenHash == hash {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (p *Policies) GetSystemPolicy(_ context.Context) (*models.SystemPolicy, error) {
	if p.System == nil {
		return nil, store.ErrNotFound
	}
	return p.System, nil
}

// Logs records every inserted request record.
type Logs struct {
	mu      sync.Mutex
	Records []models.RequestRecord
}

func (l *Logs) InsertRequestRecord(_ context.Context, r *models.RequestRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.ID = int64(len(l.Records) + 1)
	l.Records = append(l.Records, *r)
	return nil
}

func (l *Logs) All() []models.RequestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.RequestRecord(nil), l.Records...)
}

// Adapter returns a fixed output, or a ProviderError when Status is set.
type Adapter struct {
	mu     sync.Mutex
	Tier   models.Tier
	Status int
	Output string
	Usage  models.Usage
	Calls  int
}

func (a *Adapter) Complete(_ context.Context, _ []models.Message, model string) (providers.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if a.Status != 0 {
		return providers.Result{}, &providers.ProviderError{StatusCode: a.Status, Message: "upstream unavailable", Tier: a.Tier}
	}
	return providers.Result{Output: a.Output, Model: model, Usage: a.Usage}, nil
}

// Alerts captures fired webhook events.
type Alerts struct {
	mu     sync.Mutex
	Events []string
}

func (a *Alerts) Fire(_ context.Context, eventType string, _ interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Events = append(a.Events, eventType)
}

func (a *Alerts) All() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Events...)
}
