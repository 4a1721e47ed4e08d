// Package snapshot archives schema summaries to an object store so that
// past shapes of the database can be listed, downloaded and compared.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/filestore"
	"github.com/koustreak/rowgate/internal/logger"
	"github.com/koustreak/rowgate/internal/schema"
)

const (
	contentType = "application/json"
	keyTime     = "20060102T150405Z"
)

// Source produces the schema summary to archive.
type Source interface {
	Summary(ctx context.Context) ([]*schema.Table, error)
}

// Config controls where snapshots are written.
type Config struct {
	Bucket string
	Prefix string

	// URLExpiry is the lifetime of presigned download URLs.
	URLExpiry time.Duration
}

func DefaultConfig(bucket string) Config {
	return Config{Bucket: bucket, Prefix: "snapshots/", URLExpiry: 15 * time.Minute}
}

// Info describes one archived snapshot.
type Info struct {
	ID      string    `json:"id"`
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"taken_at"`
	URL     string    `json:"url,omitempty"`
}

// Document is a decoded snapshot.
type Document struct {
	ID      string         `json:"id"`
	TakenAt time.Time      `json:"taken_at"`
	Tables  []TableSummary `json:"tables"`
}

// TableSummary mirrors the JSON form of schema.Table.
type TableSummary struct {
	Table      string          `json:"table"`
	Columns    []ColumnSummary `json:"columns"`
	PrimaryKey []string        `json:"primary_key"`
}

type ColumnSummary struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NativeType string `json:"native_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Archiver saves and retrieves snapshots. It is safe for concurrent use.
// maxDocumentSize caps how much of a stored object Load will decode.
const maxDocumentSize = 32 << 20

type Archiver struct {
	store   filestore.Store
	source  Source
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
	maxSize int64
}

func New(store filestore.Store, source Source, cfg Config, log *logger.Logger) *Archiver {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = 15 * time.Minute
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, "/") {
		cfg.Prefix += "/"
	}
	return &Archiver{
		store:   store,
		source:  source,
		cfg:     cfg,
		log:     log.Component("snapshot"),
		now:     func() time.Time { return time.Now().UTC() },
		maxSize: maxDocumentSize,
	}
}

// Save summarises the schema and writes it as a new object.
func (a *Archiver) Save(ctx context.Context) (Info, error) {
	tables, err := a.source.Summary(ctx)
	if err != nil {
		return Info{}, err
	}

	if err := a.store.EnsureBucket(ctx, a.cfg.Bucket); err != nil {
		return Info{}, err
	}

	taken := a.now().Truncate(time.Second)
	id := uuid.NewString()
	body, err := json.Marshal(struct {
		ID      string          `json:"id"`
		TakenAt time.Time       `json:"taken_at"`
		Tables  []*schema.Table `json:"tables"`
	}{id, taken, tables})
	if err != nil {
		return Info{}, errs.Wrap(errs.ErrKindUnknown, "failed to encode snapshot", err)
	}

	key := a.key(taken, id)
	obj, err := a.store.PutObject(ctx, a.cfg.Bucket, key, bytes.NewReader(body), int64(len(body)), contentType)
	if err != nil {
		return Info{}, err
	}

	a.log.InfoEvent().Str("key", key).Int("tables", len(tables)).Msg("snapshot saved")

	info := Info{ID: id, Key: key, Size: obj.Size, TakenAt: taken}
	info.URL = a.presign(ctx, key)
	return info, nil
}

// List returns the archived snapshots, newest first.
func (a *Archiver) List(ctx context.Context) ([]Info, error) {
	objs, err := a.store.ListObjects(ctx, a.cfg.Bucket, filestore.ListOptions{
		Prefix:    a.cfg.Prefix,
		Recursive: true,
	})
	if err != nil {
		if errs.IsNotFound(err) {
			return []Info{}, nil
		}
		return nil, err
	}

	out := make([]Info, 0, len(objs))
	for _, o := range objs {
		taken, id, ok := a.parseKey(o.Key)
		if o.IsDir || !ok {
			continue
		}
		out = append(out, Info{ID: id, Key: o.Key, Size: o.Size, TakenAt: taken, URL: a.presign(ctx, o.Key)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TakenAt.Equal(out[j].TakenAt) {
			return out[i].Key > out[j].Key
		}
		return out[i].TakenAt.After(out[j].TakenAt)
	})
	return out, nil
}

// Load fetches and decodes the snapshot with the given id.
func (a *Archiver) Load(ctx context.Context, id string) (*Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.Newf(errs.ErrKindInvalidValue, "invalid snapshot id %q", id)
	}

	infos, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID == id {
			return a.load(ctx, info.Key)
		}
	}
	return nil, errs.Newf(errs.ErrKindNotFound, "snapshot %s not found", id)
}

func (a *Archiver) load(ctx context.Context, key string) (*Document, error) {
	info, err := a.store.StatObject(ctx, a.cfg.Bucket, key)
	if err != nil {
		return nil, err
	}
	if info.Size > a.maxSize {
		return nil, errs.Newf(errs.ErrKindQueryFailed, "snapshot %s is %d bytes, over the %d byte limit", key, info.Size, a.maxSize)
	}
	a.log.Debugf("loading snapshot %s (%d bytes)", key, info.Size)

	obj, err := a.store.GetObject(ctx, a.cfg.Bucket, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var doc Document
	if err := json.NewDecoder(obj).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to decode snapshot "+key, err)
	}
	return &doc, nil
}

// presign returns "" when the store cannot sign; the snapshot is still usable.
func (a *Archiver) presign(ctx context.Context, key string) string {
	u, err := a.store.PresignGetURL(ctx, a.cfg.Bucket, key, a.cfg.URLExpiry)
	if err != nil {
		a.log.WarnEvent().Err(err).Str("key", key).Msg("could not presign snapshot URL")
		return ""
	}
	return u
}

// key lays snapshots out as <prefix><time>_<id>.json so that names sort
// chronologically.
func (a *Archiver) key(taken time.Time, id string) string {
	return a.cfg.Prefix + taken.Format(keyTime) + "_" + id + ".json"
}

func (a *Archiver) parseKey(key string) (time.Time, string, bool) {
	name := strings.TrimSuffix(path.Base(key), ".json")
	stamp, id, ok := strings.Cut(name, "_")
	if !ok || !strings.HasPrefix(key, a.cfg.Prefix) {
		return time.Time{}, "", false
	}
	taken, err := time.Parse(keyTime, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return time.Time{}, "", false
	}
	return taken, id, true
}
