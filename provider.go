/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repopattern

import (
	"context"
	"errors"
	"sync"

	"github.com/tomoncle/repopattern/database"
	"github.com/tomoncle/repopattern/datacontext"
	"github.com/tomoncle/repopattern/types"
	"github.com/tomoncle/repopattern/unitofwork"
)

// Provider hands out units of work according to the configured Lifetime.
// It is safe for concurrent use; the units of work it returns are not.
type Provider struct {
	options UnitOfWorkOptions
	onClose func() error

	mu        sync.Mutex
	singleton unitofwork.UnitOfWork
	closed    bool
}

// Lifetime returns the configured lifetime.
func (p *Provider) Lifetime() Lifetime { return p.options.lifetime }

// UnitOfWork returns the shared unit of work of a Singleton provider or a
// new one of a Transient provider. Scoped units of work are only available
// through a Scope. The caller owns transient units of work and must close
// them.
func (p *Provider) UnitOfWork(ctx context.Context) (unitofwork.UnitOfWork, error) {
	switch p.options.lifetime {
	case Singleton:
		return p.shared(ctx)
	case Transient:
		return p.create(ctx)
	default:
		return nil, &types.StateError{Op: "resolve unit of work", Reason: "Scoped units of work must be resolved from a scope."}
	}
}

// NewScope starts a scope. Close it to release its units of work.
func (p *Provider) NewScope() *Scope {
	return &Scope{provider: p}
}

// Close closes the singleton unit of work, if any, and releases resources
// owned by the provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.singleton != nil {
		errs = append(errs, p.singleton.Close())
		p.singleton = nil
	}
	if p.onClose != nil {
		errs = append(errs, p.onClose())
	}
	return errors.Join(errs...)
}

func (p *Provider) shared(ctx context.Context) (unitofwork.UnitOfWork, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errProviderClosed
	}
	if p.singleton == nil {
		u, err := p.options.create(ctx)
		if err != nil {
			return nil, err
		}
		p.singleton = u
	}
	return p.singleton, nil
}

func (p *Provider) create(ctx context.Context) (unitofwork.UnitOfWork, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errProviderClosed
	}
	return p.options.create(ctx)
}

var errProviderClosed = &types.StateError{Op: "resolve unit of work", Reason: "The provider is closed."}

// Scope owns the units of work resolved through it, except the singleton.
// It is not safe for concurrent use.
type Scope struct {
	provider  *Provider
	scoped    unitofwork.UnitOfWork
	transient []unitofwork.UnitOfWork
	closed    bool
}

// UnitOfWork returns the provider's singleton, the scope's own unit of work
// for Scoped, or a new one for Transient.
func (s *Scope) UnitOfWork(ctx context.Context) (unitofwork.UnitOfWork, error) {
	if s.closed {
		return nil, &types.StateError{Op: "resolve unit of work", Reason: "The scope is closed."}
	}
	switch s.provider.options.lifetime {
	case Singleton:
		return s.provider.shared(ctx)
	case Transient:
		u, err := s.provider.create(ctx)
		if err != nil {
			return nil, err
		}
		s.transient = append(s.transient, u)
		return u, nil
	default:
		if s.scoped == nil {
			u, err := s.provider.create(ctx)
			if err != nil {
				return nil, err
			}
			s.scoped = u
		}
		return s.scoped, nil
	}
}

// Close closes every unit of work the scope created.
func (s *Scope) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.scoped != nil {
		errs = append(errs, s.scoped.Close())
		s.scoped = nil
	}
	for _, u := range s.transient {
		errs = append(errs, u.Close())
	}
	s.transient = nil
	return errors.Join(errs...)
}

// NewFromConfig connects the global database described by cfg and returns
// a Provider of bun-backed units of work with the configured lifetime and
// tracking behavior. Environment overrides are applied first. Every unit of
// work is created on the pool the database manager currently publishes, so
// units of work created after a reconnect use the new pool. Closing the
// provider closes the global database.
func NewFromConfig(cfg *database.Config) (*Provider, error) {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	database.OverrideConfigFromEnv(cfg)

	lifetime, err := ParseLifetime(cfg.UnitOfWorkConfig.Lifetime)
	if err != nil {
		return nil, err
	}

	if _, err := database.InitDB(cfg); err != nil {
		return nil, err
	}

	opts := []datacontext.Option{
		datacontext.WithTrackingDisabled(cfg.UnitOfWorkConfig.DisableTracking),
		datacontext.WithLogger(database.GetLogger()),
	}
	if cfg.UnitOfWorkConfig.AutoDetectChanges != nil {
		opts = append(opts, datacontext.WithAutoDetectChanges(*cfg.UnitOfWorkConfig.AutoDetectChanges))
	}

	p, err := New(func(b *Builder) {
		b.UseBunSource(database.GetDB, opts...).UseLifetime(lifetime)
	})
	if err != nil {
		_ = database.CloseDB()
		return nil, err
	}
	p.onClose = database.CloseDB
	database.GetLogger().Info("Unit of work provider ready", "lifetime", lifetime.String(), "tracking", !cfg.UnitOfWorkConfig.DisableTracking)
	return p, nil
}
