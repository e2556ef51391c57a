package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/services"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

const historyCacheTTL = 60 * time.Second

// JobSubmitter accepts uploads for background classification.
type JobSubmitter interface {
	Submit(job services.PredictionJob) error
}

// PredictionController serves uploads and the prediction history.
type PredictionController struct {
	db        *gorm.DB
	submitter JobSubmitter
	uploadDir string
	maxBytes  int64
}

// NewPredictionController creates a PredictionController. maxBytes <= 0 means 16 MiB.
func NewPredictionController(db *gorm.DB, submitter JobSubmitter, uploadDir string, maxBytes int64) *PredictionController {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	return &PredictionController{db: db, submitter: submitter, uploadDir: uploadDir, maxBytes: maxBytes}
}

type historyItem struct {
	ID             uint      `json:"id"`
	ImagePath      string    `json:"image_path"`
	PredictedClass string    `json:"predicted_class"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
}

var errUploadTooLarge = errors.New("upload too large")

// Predict stores the uploaded leaf image and hands it to the prediction service.
// The result arrives later on the session's push room.
func (p *PredictionController) Predict(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	file, header, err := ctx.Request.FormFile("image")
	if err != nil {
		// a part sent with filename="" is parsed as a plain value
		if form := ctx.Request.MultipartForm; form != nil && len(form.Value["image"]) > 0 {
			utils.Error(ctx, http.StatusBadRequest, 40011, "No image selected")
			return
		}
		utils.Error(ctx, http.StatusBadRequest, 40010, "No image provided")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40011, "No image selected")
		return
	}

	sessionID := strings.TrimSpace(ctx.Request.FormValue("session_id"))
	if sessionID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40012, "WebSocket session_id is required")
		return
	}

	if header.Size > p.maxBytes {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "image exceeds upload limit")
		return
	}

	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		utils.Sugar.Errorw("create upload dir failed", "dir", p.uploadDir, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to create upload directory")
		return
	}

	dstPath := filepath.Join(p.uploadDir, uuid.NewString()+"_"+utils.SafeFilename(header.Filename))
	if err := p.save(file, dstPath); err != nil {
		if errors.Is(err, errUploadTooLarge) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "image exceeds upload limit")
			return
		}
		utils.Sugar.Errorw("save upload failed", "path", dstPath, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to save image")
		return
	}

	uid := userID
	job := services.PredictionJob{UserID: &uid, SessionID: sessionID, FilePath: dstPath}
	if err := p.submitter.Submit(job); err != nil {
		_ = os.Remove(dstPath)
		utils.Sugar.Errorw("submit prediction failed", "session_id", sessionID, "error", err)
		utils.Respond(ctx, http.StatusInternalServerError, 50012, err.Error(), gin.H{
			"status":     services.StatusFailed,
			"session_id": sessionID,
		})
		return
	}

	utils.Respond(ctx, http.StatusAccepted, 0, "Prediction request accepted, results will be sent via WebSocket.", gin.H{
		"status":     services.StatusProcessing,
		"session_id": sessionID,
	})
}

// save copies src to dst and removes dst if it ends up larger than maxBytes.
func (p *PredictionController) save(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	lr := &io.LimitedReader{R: src, N: p.maxBytes + 1}
	written, err := io.Copy(out, lr)
	closeErr := out.Close()
	switch {
	case err != nil:
	case written > p.maxBytes:
		err = errUploadTooLarge
	default:
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
	}
	return err
}

// ListPredictions returns the caller's predictions, newest first.
func (p *PredictionController) ListPredictions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	// resolved before the query: a prediction stored meanwhile moves the user to a new key
	key := utils.HistoryCacheKey(userID)
	if b, ok := utils.CacheGetBytes(key); ok {
		var cached []historyItem
		if err := json.Unmarshal(b, &cached); err == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	var rows []models.Prediction
	if err := p.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50013, "failed to load predictions")
		return
	}

	items := make([]historyItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, historyItem{
			ID:             r.ID,
			ImagePath:      r.ImagePath,
			PredictedClass: r.PredictedClass,
			Confidence:     r.Confidence,
			CreatedAt:      r.CreatedAt,
		})
	}
	utils.CacheSetJSON(key, items, historyCacheTTL)

	utils.Success(ctx, items)
}
