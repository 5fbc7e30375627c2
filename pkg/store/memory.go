package store

import (
	"context"
	"maps"
	"sync"
)

// Memory is an in-process Reader. Find returns records in insertion order.
type Memory struct {
	mu    sync.RWMutex
	data  map[string][]Record
	fails map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		data:  make(map[string][]Record),
		fails: make(map[string]error),
	}
}

// Put stores records, replacing any record of the same entity with the same id.
func (m *Memory) Put(entity string, recs ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		id, _ := rec.ID()
		replaced := false
		if id != "" {
			for i, cur := range m.data[entity] {
				if cid, _ := cur.ID(); cid == id {
					m.data[entity][i] = maps.Clone(rec)
					replaced = true
					break
				}
			}
		}
		if !replaced {
			m.data[entity] = append(m.data[entity], maps.Clone(rec))
		}
	}
}

// FailWith makes every lookup against entity return err. A nil err clears it.
func (m *Memory) FailWith(entity string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fails, entity)
		return
	}
	m.fails[entity] = err
}

func (m *Memory) GetByID(ctx context.Context, entity, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fails[entity]; err != nil {
		return nil, err
	}
	for _, rec := range m.data[entity] {
		if rid, _ := rec.ID(); rid == id {
			return maps.Clone(rec), nil
		}
	}
	return nil, nil
}

func (m *Memory) Find(ctx context.Context, entity string, where Where) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fails[entity]; err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range m.data[entity] {
		if matches(rec, where) {
			out = append(out, maps.Clone(rec))
		}
	}
	return out, nil
}
