package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"travelPlannerAPI/internal/datasvc"
)

const (
	destinationRoot = "destination"

	DefaultPopularLimit = 5
	popularCacheSize    = 50
)

var ErrIncompleteDestination = errors.New("destination name, place, price and description are required")

type Destination struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Place       string `json:"place"`
	Price       string `json:"price"`
	Description string `json:"description"`
	View        int    `json:"view"`
	AddedBy     string `json:"addby,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type NewDestinationRequest struct {
	Name        string `json:"name"`
	Place       string `json:"place"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

// ImageLocator finds the cover image of a destination.
type ImageLocator interface {
	FirstImageURL(ctx context.Context, destinationName string) (string, error)
}

// DestinationService is the destination catalog stored under
// destination/{key}.
type DestinationService struct {
	data   datasvc.Service
	images ImageLocator

	mu          sync.RWMutex
	popular     []Destination
	refreshedAt time.Time
}

func NewDestinationService(data datasvc.Service, images ImageLocator) *DestinationService {
	return &DestinationService{
		data:   data,
		images: images,
	}
}

func parseDestination(key string, raw any) (Destination, bool) {
	rec, ok := raw.(map[string]any)
	if !ok {
		return Destination{}, false
	}
	d := Destination{
		Key:         key,
		Name:        asString(rec["name"]),
		Place:       asString(rec["place"]),
		Price:       asString(rec["price"]),
		Description: asString(rec["description"]),
		View:        asInt(rec["view"]),
		AddedBy:     asString(rec["addby"]),
	}
	if d.Name == "" {
		return Destination{}, false
	}
	return d, true
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(math.Max(t, 0))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || n < 0 {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (s *DestinationService) all(ctx context.Context) ([]Destination, error) {
	rs, err := s.data.ReadOnce(ctx, destinationRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read destinations: %w", err)
	}
	out := make([]Destination, 0, len(rs))
	for key, raw := range rs {
		d, ok := parseDestination(key, raw)
		if !ok {
			log.Printf("[Destinations] skipping malformed destination %s", key)
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// List returns every destination ordered by name.
func (s *DestinationService) List(ctx context.Context) ([]Destination, error) {
	return s.all(ctx)
}

// Search returns the destinations whose name starts with prefix. Matching
// is case-sensitive.
func (s *DestinationService) Search(ctx context.Context, prefix string) ([]Destination, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Destination, 0)
	for _, d := range all {
		if strings.HasPrefix(d.Name, prefix) {
			out = append(out, d)
		}
	}
	s.attachImages(ctx, out)
	return out, nil
}

// Popular returns the most viewed destinations, most viewed first. Results
// come from the cache filled by RefreshPopular when it is warm.
func (s *DestinationService) Popular(ctx context.Context, limit int) ([]Destination, error) {
	if limit <= 0 {
		limit = DefaultPopularLimit
	}

	s.mu.RLock()
	cached := s.popular
	s.mu.RUnlock()

	if cached == nil {
		fresh, err := s.RefreshPopular(ctx)
		if err != nil {
			return nil, err
		}
		cached = fresh
	}

	n := min(limit, len(cached))
	out := make([]Destination, n)
	copy(out, cached[:n])
	return out, nil
}

// RefreshPopular recomputes the popular ranking and replaces the cache.
func (s *DestinationService) RefreshPopular(ctx context.Context) ([]Destination, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].View > all[j].View
	})
	if len(all) > popularCacheSize {
		all = all[:popularCacheSize]
	}
	s.attachImages(ctx, all)

	s.mu.Lock()
	s.popular = all
	s.refreshedAt = time.Now()
	s.mu.Unlock()

	return all, nil
}

func (s *DestinationService) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

func (s *DestinationService) invalidatePopular() {
	s.mu.Lock()
	s.popular = nil
	s.mu.Unlock()
}

// RecordView increments the view count of every destination named name and
// reports how many were updated. The read and the write are not atomic.
func (s *DestinationService) RecordView(ctx context.Context, name string) (int, error) {
	all, err := s.all(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, d := range all {
		if d.Name != name {
			continue
		}
		path, err := datasvc.Join(destinationRoot, d.Key, "view")
		if err != nil {
			return updated, err
		}
		if err := s.data.Write(ctx, path, d.View+1); err != nil {
			return updated, fmt.Errorf("failed to update view count of %s: %w", d.Key, err)
		}
		updated++
	}
	if updated > 0 {
		s.invalidatePopular()
	}
	return updated, nil
}

// RecordViewByKey increments the view count of one destination.
func (s *DestinationService) RecordViewByKey(ctx context.Context, key string) (*Destination, error) {
	path, err := datasvc.Join(destinationRoot, key)
	if err != nil {
		return nil, err
	}
	rs, err := s.data.ReadOnce(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination %s: %w", key, err)
	}
	d, ok := parseDestination(key, map[string]any(rs))
	if !ok {
		return nil, nil
	}

	d.View++
	if err := s.data.Write(ctx, path+"/view", d.View); err != nil {
		return nil, fmt.Errorf("failed to update view count of %s: %w", key, err)
	}
	s.invalidatePopular()
	return &d, nil
}

// Add stores a new destination under the next free "location N" key.
func (s *DestinationService) Add(ctx context.Context, userID string, req NewDestinationRequest) (*Destination, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Place = strings.TrimSpace(req.Place)
	req.Price = strings.TrimSpace(req.Price)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.Place == "" || req.Price == "" || req.Description == "" {
		return nil, ErrIncompleteDestination
	}

	existing, err := s.data.ReadOnce(ctx, destinationRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read destinations: %w", err)
	}
	n := len(existing) + 1
	key := fmt.Sprintf("location %d", n)
	for {
		if _, taken := existing[key]; !taken {
			break
		}
		n++
		key = fmt.Sprintf("location %d", n)
	}

	d := Destination{
		Key:         key,
		Name:        req.Name,
		Place:       req.Place,
		Price:       req.Price,
		Description: req.Description,
		AddedBy:     userID,
	}
	path, err := datasvc.Join(destinationRoot, key)
	if err != nil {
		return nil, err
	}
	err = s.data.Write(ctx, path, map[string]any{
		"name":        d.Name,
		"place":       d.Place,
		"price":       d.Price,
		"description": d.Description,
		"view":        0,
		"addby":       userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add destination %s: %w", d.Name, err)
	}

	log.Printf("[Destinations] %s added %q as %s", userID, d.Name, key)
	s.invalidatePopular()
	return &d, nil
}

func (s *DestinationService) attachImages(ctx context.Context, list []Destination) {
	if s.images == nil {
		return
	}
	for i := range list {
		url, err := s.images.FirstImageURL(ctx, list[i].Name)
		if err != nil {
			log.Printf("[Destinations] image lookup for %s failed: %v", list[i].Name, err)
			continue
		}
		list[i].ImageURL = url
	}
}
