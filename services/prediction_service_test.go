package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/Lakshima2000/paddyHealth-backend/classifier"
	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

func TestMain(m *testing.M) {
	config.Set(config.AppConfig{JWTSecret: "services-secret"})
	utils.SetRedis(nil)
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

type fakeClassifier struct {
	result classifier.Result
	err    error
	seen   []string
	mu     sync.Mutex
}

func (f *fakeClassifier) Classify(_ context.Context, path string) (classifier.Result, error) {
	f.mu.Lock()
	f.seen = append(f.seen, path)
	f.mu.Unlock()
	// the upload must still exist while it is being classified
	if _, err := os.Stat(path); err != nil {
		return classifier.Result{}, err
	}
	return f.result, f.err
}

type published struct {
	room  string
	event string
	data  interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, room, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{room, event, data})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.AppConfig{
		DatabaseURL: "sqlite:///" + filepath.Join(t.TempDir(), "paddy.db"),
		LogLevel:    "silent",
	}
	db, err := config.OpenDatabase(cfg, models.All()...)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func writeUpload(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake jpeg"), 0o600))
	return path
}

func uintPtr(v uint) *uint { return &v }

func TestPredictionSuccess(t *testing.T) {
	db := setupDB(t)
	user := models.User{Email: "a@b.c", Username: "a", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)

	cls := &fakeClassifier{result: classifier.Result{Label: "Brown Spot", Confidence: 0.87}}
	pub := &recordingPublisher{}
	svc := NewPredictionService(db, cls, pub, nil)

	utils.CacheSetBytes(utils.HistoryCacheKey(user.ID), []byte("stale"), time.Minute)

	path := writeUpload(t)
	require.NoError(t, svc.Submit(PredictionJob{UserID: uintPtr(user.ID), SessionID: "sess-ok", FilePath: path}))
	svc.Wait()

	var rows []models.Prediction
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Brown Spot", rows[0].PredictedClass)
	assert.InDelta(t, 0.87, rows[0].Confidence, 1e-9)
	require.NotNil(t, rows[0].UserID)
	assert.Equal(t, user.ID, *rows[0].UserID)
	assert.Equal(t, path, rows[0].ImagePath)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, "sess-ok", events[0].room)
	assert.Equal(t, "prediction_result", events[0].event)
	res, ok := events[0].data.(Result)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "sess-ok", res.SessionID)
	assert.Equal(t, "Brown Spot", res.Prediction)
	assert.Equal(t, rows[0].ID, res.PredictionID)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Equal(t, classifier.Remedy("Brown Spot").EN, res.Cure)
	assert.Equal(t, classifier.Remedy("Brown Spot").SI, res.CureSI)
	assert.Equal(t, classifier.Remedy("Brown Spot").TA, res.CureTA)

	assert.NoFileExists(t, path)
	_, cached := utils.CacheGetBytes(utils.HistoryCacheKey(user.ID))
	assert.False(t, cached, "history cache invalidated")
}

func TestPredictionClassifierFailure(t *testing.T) {
	db := setupDB(t)
	pub := &recordingPublisher{}
	svc := NewPredictionService(db, &fakeClassifier{err: errors.New("model unavailable")}, pub, nil)

	path := writeUpload(t)
	require.NoError(t, svc.Submit(PredictionJob{UserID: uintPtr(1), SessionID: "sess-bad", FilePath: path}))
	svc.Wait()

	var count int64
	require.NoError(t, db.Model(&models.Prediction{}).Count(&count).Error)
	assert.Zero(t, count)

	events := pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, "sess-bad", events[0].room)
	f, ok := events[0].data.(Failure)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, f.Status)
	assert.Contains(t, f.Error, "model unavailable")

	assert.NoFileExists(t, path)
}

func TestPredictionStoreFailure(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.Prediction{}))

	pub := &recordingPublisher{}
	svc := NewPredictionService(db, &fakeClassifier{result: classifier.Result{Label: "Leaf Smut", Confidence: 0.5}}, pub, nil)

	path := writeUpload(t)
	require.NoError(t, svc.Submit(PredictionJob{SessionID: "s", FilePath: path}))
	svc.Wait()

	events := pub.all()
	require.Len(t, events, 1)
	f, ok := events[0].data.(Failure)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, f.Status)
	assert.NoFileExists(t, path)
}

func TestPredictionPublishErrorIsIgnored(t *testing.T) {
	db := setupDB(t)
	pub := &recordingPublisher{err: errors.New("nobody listening")}
	svc := NewPredictionService(db, &fakeClassifier{result: classifier.Result{Label: "Healthy Rice Leaf", Confidence: 0.99}}, pub, nil)

	require.NoError(t, svc.Submit(PredictionJob{SessionID: "s", FilePath: writeUpload(t)}))
	svc.Wait()

	var count int64
	require.NoError(t, db.Model(&models.Prediction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "row stays even when the push fails")
}

func TestPredictionConcurrentJobs(t *testing.T) {
	db := setupDB(t)
	pub := &recordingPublisher{}
	svc := NewPredictionService(db, &fakeClassifier{result: classifier.Result{Label: "Leaf Blast", Confidence: 0.6}}, pub, nil)

	const n = 5
	paths := make([]string, n)
	for i := range paths {
		paths[i] = writeUpload(t)
		require.NoError(t, svc.Submit(PredictionJob{UserID: uintPtr(3), SessionID: "same-room", FilePath: paths[i]}))
	}
	svc.Wait()

	var count int64
	require.NoError(t, db.Model(&models.Prediction{}).Count(&count).Error)
	assert.Equal(t, int64(n), count)
	assert.Len(t, pub.all(), n)
	for _, p := range paths {
		assert.NoFileExists(t, p)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	db := setupDB(t)
	svc := NewPredictionService(db, &fakeClassifier{}, &recordingPublisher{}, nil)

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.ErrorIs(t, svc.Submit(PredictionJob{SessionID: "late", FilePath: writeUpload(t)}), ErrServiceClosed)
}
