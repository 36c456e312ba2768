package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/fransearch/internal/backup"
	"github.com/hyperjump/fransearch/internal/bundle"
)

// errUnavailable means a strategy has nothing to offer. The manager moves
// on to the next strategy without logging a failure.
var errUnavailable = errors.New("source unavailable")

// Strategy is one way of obtaining a bundle during Initialize.
type Strategy interface {
	Name() string
	Load(ctx context.Context) (*bundle.Bundle, error)
}

// remoteStrategy restores the latest remote backup into a staging
// directory, validates it and copies it into the local model dir.
type remoteStrategy struct {
	m *Manager
}

func (s remoteStrategy) Name() string { return bundle.SourceRemote }

func (s remoteStrategy) Load(ctx context.Context) (*bundle.Bundle, error) {
	if s.m.backup == nil {
		return nil, errUnavailable
	}
	b, err := s.m.fetchRemote(ctx)
	if errors.Is(err, backup.ErrNoBackup) {
		return nil, errUnavailable
	}
	return b, err
}

// localStrategy loads the bundle persisted in the model dir.
type localStrategy struct {
	m *Manager
}

func (s localStrategy) Name() string { return bundle.SourceLocal }

func (s localStrategy) Load(context.Context) (*bundle.Bundle, error) {
	b, err := bundle.Load(s.m.modelDir)
	if errors.Is(err, bundle.ErrNotFound) {
		return nil, errUnavailable
	}
	if err != nil {
		return nil, err
	}
	if err := s.m.checkEncoder(b); err != nil {
		return nil, err
	}
	return b, nil
}

// trainStrategy trains from the current dataset snapshot.
type trainStrategy struct {
	m *Manager
}

func (s trainStrategy) Name() string { return bundle.SourceTrain }

func (s trainStrategy) Load(ctx context.Context) (*bundle.Bundle, error) {
	return s.m.trainAndPersist(ctx, "initialize")
}

// fetchRemote downloads outside any bundle lock into a staging dir next to
// the model dir.
func (m *Manager) fetchRemote(ctx context.Context) (*bundle.Bundle, error) {
	parent := filepath.Dir(m.modelDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, err
	}
	staging, err := os.MkdirTemp(parent, ".remote-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if _, err := m.backup.Restore(ctx, staging); err != nil {
		return nil, err
	}
	b, err := bundle.Load(staging)
	if err != nil {
		return nil, fmt.Errorf("remote bundle: %w", err)
	}
	if err := m.checkEncoder(b); err != nil {
		return nil, err
	}
	if err := m.save(b); err != nil {
		return nil, fmt.Errorf("copy remote bundle to %s: %w", m.modelDir, err)
	}
	b.Source = bundle.SourceRemote
	return b, nil
}
