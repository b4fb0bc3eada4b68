// Package learner hosts one vw session for concurrent callers and keeps a
// registry of the model checkpoints it writes.
package learner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sevir/wappa/internal/metrics"
	"github.com/sevir/wappa/internal/store"
	"github.com/sevir/wappa/pkg/models"
	"github.com/sevir/wappa/pkg/vw"
)

// ErrInvalidRequest wraps malformed examples and save requests.
var ErrInvalidRequest = errors.New("invalid request")

// missingAfter is how long a pending checkpoint may go without its file
// appearing before it is marked missing.
const missingAfter = time.Minute

// Transport names reported by Info.
const (
	TransportPipe   = "pipe"
	TransportDaemon = "daemon"
	TransportRemote = "remote_daemon"
	TransportDummy  = "dummy"
	TransportCustom = "custom"
)

// Learner serializes access to a single vw session.
type Learner struct {
	session       *vw.Session
	mu            sync.Mutex
	store         store.Store
	metrics       *metrics.Metrics
	checkpointDir string
	transport     string
	startedAt     time.Time
	pollInterval  time.Duration

	examples    atomic.Int64
	predictions atomic.Int64
	errors      atomic.Int64
}

// Config holds learner configuration.
type Config struct {
	Session       vw.Config
	StorePath     string
	CheckpointDir string
	Metrics       *metrics.Metrics
	// Transport, when set, replaces the engine process or socket.
	Transport vw.Transport
}

// New starts the session and opens the checkpoint registry.
func New(ctx context.Context, cfg Config) (*Learner, error) {
	fileStore, err := store.NewFileStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	var session *vw.Session
	if cfg.Transport != nil {
		session = vw.NewWithTransport(cfg.Session, cfg.Transport)
	} else {
		session, err = vw.New(ctx, cfg.Session)
		if err != nil {
			fileStore.Close()
			return nil, fmt.Errorf("failed to start vw: %w", err)
		}
	}

	l := &Learner{
		session:       session,
		store:         fileStore,
		metrics:       cfg.Metrics,
		checkpointDir: cfg.CheckpointDir,
		transport:     transportKind(cfg),
		startedAt:     time.Now(),
		pollInterval:  50 * time.Millisecond,
	}
	l.metrics.SetSessionUp(true)

	log.Printf("learner_event=started session_id=%s transport=%s active_mode=%t command=%q checkpoint_dir=%q",
		session.ID(), l.transport, session.ActiveMode(), session.Command(), l.checkpointDir)

	return l, nil
}

func transportKind(cfg Config) string {
	s := cfg.Session
	switch {
	case cfg.Transport != nil:
		return TransportCustom
	case s.DummyMode:
		return TransportDummy
	case s.DaemonIP != "":
		return TransportRemote
	case s.ActiveMode || s.DaemonMode:
		return TransportDaemon
	}
	return TransportPipe
}

// Train sends one labelled example and returns the engine's answer.
func (l *Learner) Train(req models.ExampleRequest) (*models.PredictionResult, error) {
	var (
		ex  vw.Example
		err error
	)
	if req.Raw == "" {
		ex, err = toExample(req)
		if err != nil {
			l.metrics.RecordError("train")
			return nil, err
		}
	} else if strings.ContainsAny(req.Raw, "\r\n") {
		l.metrics.RecordError("train")
		return nil, fmt.Errorf("%w: raw line must be a single line", ErrInvalidRequest)
	}

	l.mu.Lock()
	start := time.Now()
	var resp *vw.Response
	if req.Raw != "" {
		resp, err = l.session.SendLine(req.Raw)
	} else {
		resp, err = l.session.SendExample(ex)
	}
	line := l.session.LastLine()
	if req.Raw != "" {
		line = req.Raw
	}
	l.mu.Unlock()

	l.metrics.RecordExample(time.Since(start), err)
	if err != nil {
		l.errors.Add(1)
		logExchangeFailed("train", l.session.ID(), line, err)
		return nil, fmt.Errorf("failed to send example: %w", err)
	}
	l.examples.Add(1)

	return l.result(line, resp), nil
}

// Predict scores an unlabelled example.
func (l *Learner) Predict(req models.PredictRequest) (*models.PredictionResult, error) {
	namespaces, err := toNamespaces(req.Namespaces)
	if err != nil {
		l.metrics.RecordError("predict")
		return nil, err
	}
	features, err := toFeatures(req.Features)
	if err != nil {
		l.metrics.RecordError("predict")
		return nil, err
	}

	l.mu.Lock()
	start := time.Now()
	resp, err := l.session.GetPrediction(features, req.Tag, namespaces...)
	line := l.session.LastLine()
	l.mu.Unlock()

	l.metrics.RecordPrediction(time.Since(start), err)
	if err != nil {
		l.errors.Add(1)
		logExchangeFailed("predict", l.session.ID(), line, err)
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	l.predictions.Add(1)

	return l.result(line, resp), nil
}

func (l *Learner) result(line string, resp *vw.Response) *models.PredictionResult {
	res := &models.PredictionResult{
		SessionID: l.session.ID(),
		Line:      line,
		Raw:       resp.Raw,
		Values:    make([]*float64, 0, len(resp.Values)),
	}
	for _, v := range resp.Values {
		v := v
		if isFinite(v) {
			res.Values = append(res.Values, &v)
		} else {
			res.Values = append(res.Values, nil)
			res.NonFinite = true
		}
	}
	if resp.Prediction != nil && isFinite(*resp.Prediction) {
		res.Prediction = resp.Prediction
	}
	if resp.Importance != nil && isFinite(*resp.Importance) {
		res.Importance = resp.Importance
		l.metrics.RecordImportance(*resp.Importance)
	}
	if res.NonFinite {
		log.Printf("learner_event=non_finite_answer session_id=%s raw=%q", l.session.ID(), truncateForLog(resp.Raw, 200))
	}
	return res
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Save asks vw to write its model and records a pending checkpoint. With
// req.Wait set it polls for the file before returning; a timeout leaves
// the checkpoint pending and is not an error.
func (l *Learner) Save(ctx context.Context, req models.SaveRequest) (*models.Checkpoint, error) {
	id := generateID()

	path, err := l.checkpointPath(id, req.Path)
	if err != nil {
		l.metrics.RecordError("save")
		return nil, err
	}

	l.mu.Lock()
	err = l.session.SaveModel(path)
	l.mu.Unlock()
	if err != nil {
		l.errors.Add(1)
		l.metrics.RecordError("save")
		if errors.Is(err, vw.ErrInvalidCharacter) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("failed to save model: %w", err)
	}

	cp := &models.Checkpoint{
		ID:        id,
		SessionID: l.session.ID(),
		Path:      path,
		Status:    models.CheckpointStatusPending,
		Tags:      req.Tags,
		Examples:  l.examples.Load(),
		CreatedAt: time.Now(),
	}
	if err := l.store.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to record checkpoint: %w", err)
	}
	l.metrics.RecordCheckpoint(string(cp.Status))
	logCheckpoint("requested", cp)

	if req.Wait > 0 && l.transport != TransportRemote {
		return l.waitWritten(ctx, id, time.Duration(req.Wait))
	}
	return cp, nil
}

// checkpointPath picks the file for a new checkpoint. Paths for a local
// engine are made absolute so vw and the registry agree on them.
func (l *Learner) checkpointPath(id, requested string) (string, error) {
	path := strings.TrimSpace(requested)
	if path == "" {
		if l.checkpointDir == "" {
			return "", fmt.Errorf("%w: no path given and no checkpoint directory configured", ErrInvalidRequest)
		}
		path = filepath.Join(l.checkpointDir, id+".vw")
	}
	if err := vw.Validate(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if l.transport == TransportRemote {
		return path, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve checkpoint path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return abs, nil
}

func (l *Learner) waitWritten(ctx context.Context, id string, timeout time.Duration) (*models.Checkpoint, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		cp, err := l.refresh(id)
		if err != nil {
			return nil, err
		}
		if !cp.IsPending() {
			return cp, nil
		}

		select {
		case <-waitCtx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return cp, ctx.Err()
			}
			return cp, nil
		case <-ticker.C:
		}
	}
}

// refresh reconciles a checkpoint's status with the file system.
func (l *Learner) refresh(id string) (*models.Checkpoint, error) {
	cp, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	if l.transport == TransportRemote || l.transport == TransportDummy {
		return cp, nil
	}

	info, statErr := os.Stat(cp.Path)
	next := cp.Status
	switch {
	case statErr == nil && info.Size() > 0:
		next = models.CheckpointStatusWritten
	case statErr == nil:
		// vw has opened the file but not flushed it yet.
	case cp.IsWritten():
		next = models.CheckpointStatusMissing
	case cp.IsPending() && time.Since(cp.CreatedAt) > missingAfter:
		next = models.CheckpointStatusMissing
	}

	if next == cp.Status && (statErr != nil || info.Size() == cp.SizeBytes) {
		return cp, nil
	}

	updated, err := l.store.Update(id, func(c *models.Checkpoint) {
		c.Status = next
		if statErr == nil {
			c.SizeBytes = info.Size()
		}
		if next == models.CheckpointStatusWritten && c.WrittenAt == nil {
			now := time.Now()
			c.WrittenAt = &now
		}
		if next == models.CheckpointStatusMissing {
			c.Error = "model file not found"
		}
	})
	if err != nil {
		return nil, err
	}
	if next != cp.Status {
		l.metrics.RecordCheckpoint(string(next))
		logCheckpoint(string(next), updated)
	}
	return updated, nil
}

// GetCheckpoint returns a checkpoint with its status refreshed.
func (l *Learner) GetCheckpoint(id string) (*models.Checkpoint, error) {
	return l.refresh(id)
}

// ListCheckpoints lists checkpoints matching the request, refreshing any
// that are not yet settled.
func (l *Learner) ListCheckpoints(req models.ListRequest) ([]*models.Checkpoint, error) {
	pending, err := l.store.List(store.ListFilter{
		Status: []models.CheckpointStatus{models.CheckpointStatusPending, models.CheckpointStatusWritten},
	})
	if err != nil {
		return nil, err
	}
	for _, cp := range pending {
		if _, err := l.refresh(cp.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return l.store.List(store.ListFilter{
		SessionID: req.SessionID,
		Status:    req.Status,
		Tags:      req.Tags,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
}

// DeleteCheckpoint removes a checkpoint record and, with removeFile, its
// model file.
func (l *Learner) DeleteCheckpoint(id string, removeFile bool) error {
	cp, err := l.store.Get(id)
	if err != nil {
		return err
	}

	if removeFile && l.transport != TransportRemote {
		if err := os.Remove(cp.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove model file: %w", err)
		}
	}

	if err := l.store.Delete(id); err != nil {
		return err
	}
	log.Printf("checkpoint_event=deleted checkpoint_id=%s path=%q file_removed=%t", id, cp.Path, removeFile)
	return nil
}

// Info describes the hosted session.
func (l *Learner) Info() models.SessionInfo {
	l.mu.Lock()
	state := l.session.State()
	lastLine := l.session.LastLine()
	l.mu.Unlock()

	return models.SessionInfo{
		ID:          l.session.ID(),
		Command:     l.session.Command(),
		State:       string(state),
		Transport:   l.transport,
		Endpoint:    l.session.Endpoint(),
		ActiveMode:  l.session.ActiveMode(),
		StartedAt:   l.startedAt,
		Uptime:      time.Since(l.startedAt).Truncate(time.Second).String(),
		Examples:    l.examples.Load(),
		Predictions: l.predictions.Load(),
		Checkpoints: l.store.Count(),
		Errors:      l.errors.Load(),
		LastLine:    lastLine,
	}
}

// Shutdown closes the session and flushes the registry.
func (l *Learner) Shutdown() error {
	l.mu.Lock()
	err := l.session.Close()
	l.mu.Unlock()

	l.metrics.SetSessionUp(false)
	log.Printf("learner_event=stopped session_id=%s examples=%d predictions=%d errors=%d",
		l.session.ID(), l.examples.Load(), l.predictions.Load(), l.errors.Load())

	if storeErr := l.store.Close(); err == nil {
		err = storeErr
	}
	return err
}

func generateID() string {
	return fmt.Sprintf("cp-%s", uuid.New().String()[:8])
}

func logExchangeFailed(operation, sessionID, line string, err error) {
	log.Printf("learner_event=exchange_failed operation=%s session_id=%s line=%q error=%q",
		operation, sessionID, truncateForLog(line, 160), err.Error())
}

func logCheckpoint(event string, cp *models.Checkpoint) {
	log.Printf("checkpoint_event=%s checkpoint_id=%s session_id=%s path=%q examples=%d size_bytes=%d tags=%v",
		event, cp.ID, cp.SessionID, cp.Path, cp.Examples, cp.SizeBytes, cp.Tags)
}

func truncateForLog(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
