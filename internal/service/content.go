package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"contentapi/internal/category"
	"contentapi/internal/config"
	"contentapi/internal/model"
	"contentapi/internal/repository"
	"contentapi/internal/storage"
)

// maxNameAttempts bounds regeneration of a payload name that is already taken.
const maxNameAttempts = 5

var tracer = otel.Tracer("contentapi/internal/service")

// IngestRequest describes one uploaded file.
type IngestRequest struct {
	// Category is the storage category tag, singular or plural ("book", "books").
	Category string
	// ContentType is the MIME type declared by the uploader.
	ContentType string
	// Field is the multipart field name; it prefixes the generated name.
	Field string
	// Filename is the uploader's original file name. Only its extension is reused.
	Filename string
	// Size is the declared byte count, or -1 when unknown.
	Size   int64
	Body   io.Reader
	Fields model.Fields
}

// ActivityListResult is the service-level DTO for the paginated audit trail.
type ActivityListResult struct {
	Items []model.Activity `json:"data"`
	Total int              `json:"total"`
}

// ContentService defines the use cases for uploaded content.
type ContentService interface {
	// Ingest validates the upload against its category, stores the payload under a fresh
	// name and writes its metadata sidecar. If the sidecar cannot be written the payload is
	// removed again, so a successful return always leaves both halves on disk.
	Ingest(ctx context.Context, req IngestRequest) (*model.StoredItem, error)

	// List returns the items of a category ordered by filename. Payloads without a
	// readable sidecar are described from the file itself.
	List(ctx context.Context, categoryTag string) ([]model.StoredItem, error)

	// Open streams a stored payload. The caller must close the reader.
	Open(ctx context.Context, categoryTag, filename string) (io.ReadCloser, *model.StoredItem, error)

	// Delete removes a payload and then, best effort, its sidecar. A sidecar that cannot be
	// removed is logged and does not fail the call.
	Delete(ctx context.Context, categoryTag, filename string) error

	// Activity returns the upload/delete audit trail, newest first.
	Activity(ctx context.Context, limit, offset int) (*ActivityListResult, error)
}

// Option customizes a content service.
type Option func(*contentService)

// WithMaxUploadBytes overrides the payload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *contentService) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithMetrics records operation counters.
func WithMetrics(m *Metrics) Option {
	return func(s *contentService) { s.metrics = m }
}

// WithClock replaces time.Now for upload timestamps and generated names.
func WithClock(now func() time.Time) Option {
	return func(s *contentService) {
		s.now = now
		s.names.now = now
	}
}

type contentService struct {
	store    storage.Storage
	activity repository.ActivityRepository
	log      *zap.Logger
	metrics  *Metrics
	names    *namer
	now      func() time.Time
	maxBytes int64
}

// NewContentService constructs a new ContentService.
// A nil activity repository disables the audit trail.
func NewContentService(store storage.Storage, activity repository.ActivityRepository, log *zap.Logger, opts ...Option) ContentService {
	if activity == nil {
		activity = repository.NoopActivity{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &contentService{
		store:    store,
		activity: activity,
		log:      log.Named("content"),
		names:    newNamer(time.Now),
		now:      time.Now,
		maxBytes: config.DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *contentService) Ingest(ctx context.Context, req IngestRequest) (*model.StoredItem, error) {
	ctx, span := tracer.Start(ctx, "ContentService.Ingest", trace.WithAttributes(
		attribute.String("content.category", req.Category),
		attribute.String("content.mime", req.ContentType),
		attribute.Int64("content.declared_size", req.Size),
	))
	defer span.End()

	item, err := s.ingest(ctx, req)

	label := "unknown"
	if c, cerr := category.Resolve(req.Category); cerr == nil {
		label = c.String()
	}
	var size int64
	if item != nil {
		size = item.Size
	}
	s.metrics.observeIngest(label, err, size)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("content.filename", item.Filename))
	return item, nil
}

func (s *contentService) ingest(ctx context.Context, req IngestRequest) (*model.StoredItem, error) {
	if req.Body == nil {
		return nil, ErrReaderNil
	}
	cat, err := category.Resolve(req.Category)
	if err != nil {
		return nil, err
	}
	if !cat.Accepts(req.ContentType) {
		return nil, fmt.Errorf("%w: only %s files are accepted for %s, got %q",
			ErrUnsupportedMediaType, cat.Expected(), cat, req.ContentType)
	}
	if req.Size > s.maxBytes {
		return nil, s.tooLarge()
	}

	size := req.Size
	if size <= 0 {
		size = -1
	}
	body := &limitedReader{r: req.Body, remaining: s.maxBytes, tooLarge: s.tooLarge}
	item := &model.StoredItem{
		ID:           uuid.NewString(),
		Fields:       req.Fields,
		ContentType:  cat.String(),
		OriginalName: req.Filename,
		MimeType:     category.MediaType(req.ContentType),
		UploadDate:   s.now().UTC(),
	}

	for attempt := 1; ; attempt++ {
		name := s.names.next(req.Field, req.Filename)
		item.Filename = name
		item.URL = itemURL(cat, name)

		err = s.commit(ctx, path.Join(cat.Dir(), name), body, size, item)
		if err == nil {
			break
		}
		// A taken name can only be retried while the body is still unread.
		if errors.Is(err, storage.ErrObjectExists) && body.read == 0 && attempt < maxNameAttempts {
			s.log.Debug("name_collision", zap.String("filename", name), zap.Int("attempt", attempt))
			continue
		}
		return nil, s.classify(err)
	}

	s.log.Info("content_ingested",
		zap.String("category", cat.String()),
		zap.String("filename", item.Filename),
		zap.Int64("size", item.Size),
	)
	s.record(ctx, model.ActionUploaded, cat, item.Filename, item.Size)
	return item, nil
}

// commit writes the payload and then its sidecar. When the sidecar write fails the
// payload is deleted again; only a failed rollback can leave an orphan, and that case is
// logged and returned.
func (s *contentService) commit(ctx context.Context, key string, body io.Reader, size int64, item *model.StoredItem) error {
	info, err := s.store.Put(ctx, key, body, storage.PutObjectOptions{
		Size:        size,
		ContentType: item.MimeType,
		Metadata: map[string]string{
			"original-filename": item.OriginalName,
		},
	})
	if err != nil {
		return err
	}
	item.Size = info.Size

	meta, err := json.MarshalIndent(item, "", "  ")
	if err == nil {
		_, err = s.store.Put(ctx, key+sidecarExt, bytes.NewReader(meta), storage.PutObjectOptions{
			Size:        int64(len(meta)),
			ContentType: "application/json",
		})
	}
	if err == nil {
		return nil
	}

	// Rollback runs even when the request context is already cancelled.
	if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
		s.log.Error("rollback_failed",
			zap.String("key", key),
			zap.NamedError("sidecar_error", err),
			zap.NamedError("rollback_error", delErr),
		)
		return fmt.Errorf("%w: sidecar write failed: %v; rollback delete failed: %v", ErrIOFailure, err, delErr)
	}
	s.log.Warn("sidecar_write_failed", zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w: sidecar write failed: %w", ErrIOFailure, err)
}

// classify maps storage errors onto the service taxonomy.
func (s *contentService) classify(err error) error {
	switch {
	case errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrIOFailure),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
}

func (s *contentService) tooLarge() error {
	return fmt.Errorf("%w: the limit is %d bytes", ErrPayloadTooLarge, s.maxBytes)
}

func (s *contentService) List(ctx context.Context, categoryTag string) ([]model.StoredItem, error) {
	ctx, span := tracer.Start(ctx, "ContentService.List", trace.WithAttributes(
		attribute.String("content.category", categoryTag),
	))
	defer span.End()

	cat, err := category.Resolve(categoryTag)
	if err != nil {
		return nil, err
	}

	objects, err := s.store.List(ctx, cat.Dir())
	if err != nil {
		span.RecordError(err)
		return nil, s.classify(err)
	}

	items := make([]model.StoredItem, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if isSidecar(name) || !validPayloadName(name) {
			continue
		}
		items = append(items, s.describe(ctx, cat, name, obj))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Filename < items[j].Filename })
	span.SetAttributes(attribute.Int("content.count", len(items)))
	return items, nil
}

// describe builds an item from its sidecar, or from the payload's own info when the
// sidecar is missing or unreadable.
func (s *contentService) describe(ctx context.Context, cat category.Category, name string, obj storage.ObjectInfo) model.StoredItem {
	key := path.Join(cat.Dir(), name)
	item, err := s.readSidecar(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Warn("sidecar_unreadable", zap.String("key", key), zap.Error(err))
		}
		return model.StoredItem{
			ContentType:  cat.String(),
			Filename:     name,
			OriginalName: name,
			MimeType:     obj.ContentType,
			Size:         obj.Size,
			UploadDate:   obj.LastModified.UTC(),
			URL:          itemURL(cat, name),
		}
	}

	// Location and size come from the payload itself.
	item.ContentType = cat.String()
	item.Filename = name
	item.URL = itemURL(cat, name)
	item.Size = obj.Size
	if item.OriginalName == "" {
		item.OriginalName = name
	}
	if item.MimeType == "" {
		item.MimeType = obj.ContentType
	}
	return *item
}

func (s *contentService) readSidecar(ctx context.Context, key string) (*model.StoredItem, error) {
	rc, _, err := s.store.Get(ctx, key+sidecarExt)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var item model.StoredItem
	if err := json.NewDecoder(rc).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}
	return &item, nil
}

func (s *contentService) Open(ctx context.Context, categoryTag, filename string) (io.ReadCloser, *model.StoredItem, error) {
	cat, err := category.Resolve(categoryTag)
	if err != nil {
		return nil, nil, err
	}
	if !validPayloadName(filename) {
		return nil, nil, ErrNotFound
	}

	rc, info, err := s.store.Get(ctx, path.Join(cat.Dir(), filename))
	if err != nil {
		return nil, nil, s.classify(err)
	}
	item := s.describe(ctx, cat, filename, info)
	return rc, &item, nil
}

func (s *contentService) Delete(ctx context.Context, categoryTag, filename string) error {
	ctx, span := tracer.Start(ctx, "ContentService.Delete", trace.WithAttributes(
		attribute.String("content.category", categoryTag),
		attribute.String("content.filename", filename),
	))
	defer span.End()

	cat, err := category.Resolve(categoryTag)
	if err != nil {
		return err
	}

	err = s.delete(ctx, cat, filename)
	s.metrics.observeDelete(cat.String(), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
	return err
}

func (s *contentService) delete(ctx context.Context, cat category.Category, filename string) error {
	if !validPayloadName(filename) {
		return ErrNotFound
	}
	key := path.Join(cat.Dir(), filename)

	var size int64
	if info, err := s.store.Stat(ctx, key); err == nil {
		size = info.Size
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return s.classify(err)
	}

	// Sidecar removal is best effort once the payload is gone.
	if err := s.store.Delete(ctx, key+sidecarExt); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.log.Warn("sidecar_delete_failed", zap.String("key", key+sidecarExt), zap.Error(err))
	}

	s.log.Info("content_deleted", zap.String("category", cat.String()), zap.String("filename", filename))
	s.record(ctx, model.ActionDeleted, cat, filename, size)
	return nil
}

// Activity returns paginated audit entries without exposing repository types.
func (s *contentService) Activity(ctx context.Context, limit, offset int) (*ActivityListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.activity.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ActivityListResult{Items: res.Items, Total: res.Total}, nil
}

// record appends to the audit trail. Failures are logged only.
func (s *contentService) record(ctx context.Context, action string, cat category.Category, filename string, size int64) {
	a := &model.Activity{
		ID:        uuid.NewString(),
		Action:    action,
		Category:  cat.String(),
		Filename:  filename,
		Size:      size,
		CreatedAt: s.now().UTC(),
	}
	if err := s.activity.Record(context.WithoutCancel(ctx), a); err != nil {
		s.log.Warn("activity_record_failed", zap.String("action", action), zap.String("filename", filename), zap.Error(err))
	}
}

func itemURL(cat category.Category, name string) string {
	return "/uploads/" + cat.Dir() + "/" + name
}

// limitedReader fails with ErrPayloadTooLarge once more than the limit has been read,
// so an oversize body is rejected after at most limit+1 bytes.
type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	tooLarge  func() error
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, l.tooLarge()
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, l.tooLarge()
	}
	return n, err
}
