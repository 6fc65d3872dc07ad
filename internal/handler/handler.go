// Package handler exposes the unit API over gin.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rotcunit/internal/attendance"
	"rotcunit/internal/auth"
	"rotcunit/internal/export"
	"rotcunit/internal/grading"
	"rotcunit/internal/model"
	"rotcunit/internal/report"
	"rotcunit/internal/scan"
)

// Attendance is the slice of the attendance service the handlers call.
type Attendance interface {
	CreateDay(ctx context.Context, date time.Time, title, description string) (model.TrainingDay, error)
	ListDays(ctx context.Context, limit, offset int) ([]model.TrainingDay, error)
	DeleteDay(ctx context.Context, id string) error
	Records(ctx context.Context, dayID string, personType model.PersonType) ([]model.AttendanceRecord, error)
	Mark(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
	Scan(ctx context.Context, dayID, qrData string, status model.Status, personType model.PersonType) (model.AttendanceRecord, error)
	ImportSheet(ctx context.Context, personType model.PersonType, text string) ([]scan.Candidate, error)
	ConfirmImport(ctx context.Context, dayID string, cands []scan.Candidate) (int, []error)
}

// Rosters is the slice of the roster repository the handlers call.
type Rosters interface {
	CreateCadet(ctx context.Context, c model.Cadet) (model.Cadet, error)
	ListCadets(ctx context.Context, activeOnly bool) ([]model.Cadet, error)
	CreateStaff(ctx context.Context, s model.Staff) (model.Staff, error)
	ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error)
	Members(ctx context.Context, personType model.PersonType) ([]model.RosterMember, error)
}

// Grades is the slice of the grading service the handlers call.
type Grades interface {
	AddMerit(ctx context.Context, e model.MeritEntry) (model.MeritEntry, error)
	Merits(ctx context.Context, cadetID string) ([]model.MeritEntry, error)
	Summary(ctx context.Context) ([]grading.CadetSummary, error)
}

// Messages is the slice of the messaging repository the handlers call.
type Messages interface {
	Post(ctx context.Context, a model.Announcement) (model.Announcement, error)
	List(ctx context.Context, limit int) ([]model.Announcement, error)
}

// Handler carries the API dependencies.
type Handler struct {
	att    Attendance
	roster Rosters
	grades Grades
	msgs   Messages
	log    *zap.SugaredLogger
}

// New creates a handler.
func New(att Attendance, roster Rosters, grades Grades, msgs Messages, log *zap.SugaredLogger) *Handler {
	return &Handler{att: att, roster: roster, grades: grades, msgs: msgs, log: log}
}

// Register wires the authenticated API routes onto group. Marking, scanning,
// and reads stay open to any authenticated token (scanning stations
// included); administrative writes additionally pass through staffOnly.
func (h *Handler) Register(group *gin.RouterGroup, staffOnly gin.HandlerFunc) {
	group.GET("/attendance/days", h.ListDays)
	group.POST("/attendance/days", staffOnly, h.CreateDay)
	group.DELETE("/attendance/days/:id", staffOnly, h.DeleteDay)

	group.GET("/attendance/records/:dayId", h.records(model.PersonCadet))
	group.GET("/attendance/records/:dayId/staff", h.records(model.PersonStaff))

	group.POST("/attendance/mark", h.mark(model.PersonCadet))
	group.POST("/attendance/mark/staff", h.mark(model.PersonStaff))

	group.POST("/attendance/scan", h.scanQR(model.PersonCadet))
	group.POST("/attendance/staff/scan", h.scanQR(model.PersonStaff))

	group.POST("/attendance/import", staffOnly, h.ImportSheet)
	group.POST("/attendance/import/confirm", staffOnly, h.ConfirmImport)
	group.GET("/attendance/export/:dayId", h.ExportCSV)

	group.GET("/cadets", h.ListCadetsJSON)
	group.POST("/cadets", staffOnly, h.CreateCadet)
	group.GET("/staff", h.ListStaffJSON)
	group.POST("/staff", staffOnly, h.CreateStaff)

	group.GET("/grading/summary", h.GradingSummary)
	group.POST("/grading/merits", staffOnly, h.AddMerit)
	group.GET("/grading/merits/:cadetId", h.ListMerits)

	group.GET("/reports/attendance", h.AttendanceReport)

	group.GET("/announcements", h.ListAnnouncements)
	group.POST("/announcements", staffOnly, h.PostAnnouncement)
}

// ---------- Training days ----------

func (h *Handler) ListDays(c *gin.Context) {
	limit, offset := pagination(c)
	days, err := h.att.ListDays(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (h *Handler) CreateDay(c *gin.Context) {
	var req struct {
		Date        string `json:"date" binding:"required"`
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	day, err := h.att.CreateDay(c.Request.Context(), date, req.Title, req.Description)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, day)
}

func (h *Handler) DeleteDay(c *gin.Context) {
	if err := h.att.DeleteDay(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Records and marking ----------

func (h *Handler) records(personType model.PersonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.att.Records(c.Request.Context(), c.Param("dayId"), personType)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func (h *Handler) mark(personType model.PersonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DayID    string `json:"day_id" binding:"required"`
			PersonID string `json:"person_id" binding:"required"`
			Status   string `json:"status" binding:"required"`
			Remarks  string `json:"remarks"`
			TimeIn   string `json:"time_in"`
			TimeOut  string `json:"time_out"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := h.att.Mark(c.Request.Context(), model.AttendanceRecord{
			TrainingDayID: req.DayID,
			PersonID:      req.PersonID,
			PersonType:    personType,
			Status:        model.Status(req.Status),
			Remarks:       req.Remarks,
			TimeIn:        req.TimeIn,
			TimeOut:       req.TimeOut,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (h *Handler) scanQR(personType model.PersonType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			DayID  string `json:"day_id" binding:"required"`
			QRData string `json:"qr_data" binding:"required"`
			Status string `json:"status"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := h.att.Scan(c.Request.Context(), req.DayID, req.QRData, model.Status(req.Status), personType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// ---------- Sheet import ----------

// ImportSheet accepts recognized sheet text as a multipart upload and
// returns mark candidates for confirmation. Binary uploads are rejected:
// recognition runs at the scanning station, not here.
func (h *Handler) ImportSheet(c *gin.Context) {
	personType := model.PersonType(c.DefaultPostForm("person_type", string(model.PersonCadet)))
	if !personType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown person_type"})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}
	if !utf8.Valid(data) || strings.ContainsRune(string(data), '\x00') {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ocr engine unavailable: upload recognized text"})
		return
	}

	cands, err := h.att.ImportSheet(c.Request.Context(), personType, string(data))
	if errors.Is(err, attendance.ErrNoMatches) {
		// Informational, not a failure: the sheet just matched nobody.
		c.JSON(http.StatusOK, gin.H{"candidates": []scan.Candidate{}, "message": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": cands})
}

func (h *Handler) ConfirmImport(c *gin.Context) {
	var req struct {
		DayID      string           `json:"day_id" binding:"required"`
		Candidates []scan.Candidate `json:"candidates" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, failures := h.att.ConfirmImport(c.Request.Context(), req.DayID, req.Candidates)
	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Error()
	}
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"applied": applied, "failures": msgs})
}

// ---------- CSV export ----------

func (h *Handler) ExportCSV(c *gin.Context) {
	personType := model.PersonType(c.DefaultQuery("type", string(model.PersonCadet)))
	if !personType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown type"})
		return
	}
	dayID := c.Param("dayId")

	records, err := h.att.Records(c.Request.Context(), dayID, personType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	members, err := h.roster.Members(c.Request.Context(), personType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="attendance_`+dayID+`.csv"`)
	if err := export.WriteRosterCSV(c.Writer, records, members); err != nil {
		h.log.Warnw("csv export failed", "day", dayID, "err", err)
	}
}

// ---------- Rosters ----------

func (h *Handler) ListCadetsJSON(c *gin.Context) {
	cadets, err := h.roster.ListCadets(c.Request.Context(), c.Query("all") == "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	members, err := h.roster.Members(c.Request.Context(), model.PersonCadet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cadets": cadets, "members": members})
}

func (h *Handler) CreateCadet(c *gin.Context) {
	var req model.Cadet
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cadet, err := h.roster.CreateCadet(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cadet)
}

func (h *Handler) ListStaffJSON(c *gin.Context) {
	staff, err := h.roster.ListStaff(c.Request.Context(), c.Query("all") == "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	members, err := h.roster.Members(c.Request.Context(), model.PersonStaff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff, "members": members})
}

func (h *Handler) CreateStaff(c *gin.Context) {
	var req model.Staff
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff, err := h.roster.CreateStaff(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, staff)
}

// ---------- Grading ----------

func (h *Handler) GradingSummary(c *gin.Context) {
	summary, err := h.grades.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *Handler) AddMerit(c *gin.Context) {
	var req struct {
		CadetID string `json:"cadet_id" binding:"required"`
		Points  int    `json:"points" binding:"required"`
		Reason  string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.grades.AddMerit(c.Request.Context(), model.MeritEntry{
		CadetID:  req.CadetID,
		Points:   req.Points,
		Reason:   req.Reason,
		IssuedBy: subject(c),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListMerits(c *gin.Context) {
	entries, err := h.grades.Merits(c.Request.Context(), c.Param("cadetId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"merits": entries})
}

// ---------- Reports ----------

// AttendanceReport flags cadets whose attendance rate deviates sharply from
// the unit mean.
func (h *Handler) AttendanceReport(c *gin.Context) {
	summary, err := h.grades.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rows := make([]report.RateRow, len(summary))
	for i, s := range summary {
		rows[i] = report.RateRow{PersonID: s.CadetID, Name: s.Name, Rate: s.AttendanceScore / 100}
	}
	threshold := 2.0
	if v := c.Query("threshold"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = parsed
		}
	}
	c.JSON(http.StatusOK, report.Analyze(rows, threshold))
}

// ---------- Announcements ----------

func (h *Handler) ListAnnouncements(c *gin.Context) {
	limit, _ := pagination(c)
	anns, err := h.msgs.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"announcements": anns})
}

func (h *Handler) PostAnnouncement(c *gin.Context) {
	var req struct {
		Title     string     `json:"title" binding:"required"`
		Body      string     `json:"body" binding:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ann, err := h.msgs.Post(c.Request.Context(), model.Announcement{
		AuthorID:  subject(c),
		Title:     req.Title,
		Body:      req.Body,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ann)
}

// subject pulls the authenticated subject out of the request claims.
func subject(c *gin.Context) string {
	claimsAny, ok := c.Get("claims")
	if !ok {
		return ""
	}
	claims, _ := claimsAny.(auth.Claims)
	return claims.Subject
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, offset = 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
