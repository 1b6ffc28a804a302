// Package fileinfo serves the side-panel details of one entry: size, tags
// and comments.
package fileinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jellydator/ttlcache/v3"
	"github.com/samber/lo"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// DefaultTTL is how long a loaded Info is served from cache.
const DefaultTTL = 30 * time.Second

// Source is the metadata surface of the synchronizer.
type Source interface {
	Metadata(ctx context.Context, path, key string) (string, bool, error)
	SetMetadata(ctx context.Context, path, key, value string) error
	FileSize(ctx context.Context, path string) (int64, error)
}

// Info describes one entry.
type Info struct {
	Path      string   `json:"path"`
	Name      string   `json:"name"`
	Kind      string   `json:"type"`
	Size      int64    `json:"size"`
	HumanSize string   `json:"humanSize,omitempty"`
	Tags      []string `json:"tags"`
	Comments  string   `json:"comments"`
	// Mode is the editor language for text-like entries.
	Mode string `json:"mode,omitempty"`
}

// Service loads and edits entry details.
type Service struct {
	src   Source
	cache *ttlcache.Cache[string, Info]
}

// New creates a service over src. A non-positive ttl selects DefaultTTL.
func New(src Source, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, Info](ttl),
		ttlcache.WithDisableTouchOnHit[string, Info](),
	)
	go cache.Start()
	return &Service{src: src, cache: cache}
}

// Close stops the cache janitor.
func (s *Service) Close() { s.cache.Stop() }

// Load returns the details of node. Directories carry no size.
func (s *Service) Load(ctx context.Context, node *tree.FileNode) (Info, error) {
	if node == nil {
		return Info{}, store.Wrap(store.OpMetadata, "", store.ErrNoSuchFile)
	}
	if item := s.cache.Get(node.Path); item != nil {
		return item.Value(), nil
	}

	info := Info{Path: node.Path, Name: node.Name, Kind: node.Kind, Tags: []string{}}
	if !node.IsDir() {
		size, err := s.src.FileSize(ctx, node.Path)
		if err != nil {
			return Info{}, fmt.Errorf("size of %s: %w", node.Path, err)
		}
		info.Size = size
		info.HumanSize = humanize.IBytes(uint64(size))
		if node.IsText() {
			info.Mode = tree.ModeForMime(node.Kind)
		}
	}

	tags, err := s.tags(ctx, node.Path)
	if err != nil {
		return Info{}, err
	}
	info.Tags = tags

	comments, _, err := s.src.Metadata(ctx, node.Path, store.KeyComments)
	if err != nil {
		return Info{}, fmt.Errorf("comments of %s: %w", node.Path, err)
	}
	info.Comments = comments

	s.cache.Set(node.Path, info, ttlcache.DefaultTTL)
	return info, nil
}

func (s *Service) tags(ctx context.Context, path string) ([]string, error) {
	raw, ok, err := s.src.Metadata(ctx, path, store.KeyTags)
	if err != nil {
		return nil, fmt.Errorf("tags of %s: %w", path, err)
	}
	tags := []string{}
	if !ok || raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		logging.Sub("fileinfo").Warn("malformed tags, ignoring", "path", path, "err", err)
		return []string{}, nil
	}
	return tags, nil
}

func (s *Service) writeTags(ctx context.Context, path string, tags []string) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	s.cache.Delete(path)
	return s.src.SetMetadata(ctx, path, store.KeyTags, string(data))
}

// AddTag appends a trimmed tag. Blank and duplicate tags are ignored.
func (s *Service) AddTag(ctx context.Context, path, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	tags, err := s.tags(ctx, path)
	if err != nil {
		return nil, err
	}
	if tag == "" || lo.Contains(tags, tag) {
		return tags, nil
	}
	tags = append(tags, tag)
	return tags, s.writeTags(ctx, path, tags)
}

// RemoveTag drops every occurrence of tag.
func (s *Service) RemoveTag(ctx context.Context, path, tag string) ([]string, error) {
	tags, err := s.tags(ctx, path)
	if err != nil {
		return nil, err
	}
	tags = lo.Without(tags, tag)
	return tags, s.writeTags(ctx, path, tags)
}

// SaveComments replaces the comments of path.
func (s *Service) SaveComments(ctx context.Context, path, comments string) error {
	s.cache.Delete(path)
	return s.src.SetMetadata(ctx, path, store.KeyComments, comments)
}

// Invalidate drops every cached entry, for instance after a new tree.
func (s *Service) Invalidate() { s.cache.DeleteAll() }
