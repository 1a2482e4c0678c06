package controllers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/utils"
)

type AdminController struct {
	DB *gorm.DB
}

type userImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

func parseBoolDefaultTrue(val string) (bool, bool) {
	if val == "" {
		return true, false
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n", "inactive":
		return false, true
	default:
		return true, false
	}
}

// ImportUsers allows admin to bulk-create users from a CSV file.
// Expected header columns (case-insensitive):
// full_name, email, password, role (optional), active (optional)
func (a *AdminController) ImportUsers(c *gin.Context) {
	// Limit max upload size (10MB) to avoid accidental huge files.
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
		return
	}
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	if fileHeader == nil || fileHeader.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	filename := strings.ToLower(strings.TrimSpace(fileHeader.Filename))
	if !strings.HasSuffix(filename, ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are allowed"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}

	// Normalise line endings so files saved with only CR or CRLF behave
	// consistently.
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})

	delimiter := ','
	firstLineEnd := bytes.IndexByte(data, '\n')
	if firstLineEnd == -1 {
		firstLineEnd = len(data)
	}
	firstLine := data[:firstLineEnd]
	firstLine = bytes.TrimPrefix(firstLine, []byte{0xEF, 0xBB, 0xBF})
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		delimiter = ';'
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	if delimiter != ',' {
		reader.Comma = delimiter
	}

	header, err := reader.Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read header"})
		return
	}
	cleanHeader := func(val string) string {
		v := strings.TrimSpace(val)
		for strings.HasPrefix(v, "\uFEFF") {
			v = strings.TrimPrefix(v, "\uFEFF")
		}
		v = strings.Trim(v, "\"'")
		return v
	}
	for i := range header {
		header[i] = cleanHeader(header[i])
	}

	headerIdx := make(map[string]int, len(header))
	for idx, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if key != "" {
			headerIdx[key] = idx
		}
	}

	required := []string{"full_name", "email", "password"}
	for _, key := range required {
		if _, ok := headerIdx[key]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing header column: %s", key)})
			return
		}
	}

	getVal := func(record []string, key string) string {
		idx, ok := headerIdx[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		totalRows   int
		createdRows int
		failures    []userImportError
	)

	rowNum := 1 // already consumed header line
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			failures = append(failures, userImportError{
				Row:   rowNum + 1,
				Error: fmt.Sprintf("failed to read row: %v", err),
			})
			continue
		}
		rowNum++
		totalRows++

		fullName := getVal(row, "full_name")
		email := strings.ToLower(getVal(row, "email"))
		password := getVal(row, "password")
		role := strings.ToLower(getVal(row, "role"))
		activeStr := getVal(row, "active")

		if fullName == "" || email == "" || password == "" {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: "full_name, email, and password are required",
			})
			continue
		}

		if role == "" {
			role = "student"
		}
		if !IsValidRole(role) {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: "invalid role",
			})
			continue
		}

		activeVal, provided := parseBoolDefaultTrue(activeStr)
		if activeStr != "" && !provided {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: "invalid active value",
			})
			continue
		}

		if existingErr := a.DB.Where("email = ?", email).First(&models.User{}).Error; existingErr == nil {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: "email already exists",
			})
			continue
		} else if !errors.Is(existingErr, gorm.ErrRecordNotFound) {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: fmt.Sprintf("failed to check existing user: %v", existingErr),
			})
			continue
		}

		hashed, hashErr := utils.HashPassword(password)
		if hashErr != nil {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: fmt.Sprintf("failed to hash password: %v", hashErr),
			})
			continue
		}

		user := models.User{
			UserID:   uuid.NewString(),
			FullName: fullName,
			Email:    email,
			Password: hashed,
			Role:     role,
			Active:   activeVal,
		}

		if err := a.DB.Create(&user).Error; err != nil {
			failures = append(failures, userImportError{
				Row:   rowNum,
				Email: email,
				Error: fmt.Sprintf("failed to insert user: %v", err),
			})
			continue
		}

		createdRows++
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": gin.H{
			"total_rows": totalRows,
			"inserted":   createdRows,
			"failed":     len(failures),
		},
		"errors": failures,
	})
}

func (a *AdminController) ListUsers(c *gin.Context) {
	// Query params: limit, page, all, sort_by, sort_dir, q, role, active
	all := strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1"
	limit := 50
	page := 1
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	sortBy := strings.ToLower(c.DefaultQuery("sort_by", "created_at"))
	sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "DESC"
	}
	allowedSorts := map[string]string{
		"id":         "id",
		"created_at": "created_at",
		"full_name":  "full_name",
		"email":      "email",
		"role":       "role",
		"active":     "active",
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := fmt.Sprintf("%s %s", sortCol, sortDir)

	qText := strings.TrimSpace(c.Query("q"))
	role := strings.TrimSpace(strings.ToLower(c.Query("role")))
	activeStr := strings.TrimSpace(strings.ToLower(c.Query("active")))

	applyFilters := func(q *gorm.DB) (*gorm.DB, bool) {
		if qText != "" {
			like := "%" + qText + "%"
			q = q.Where("full_name ILIKE ? OR email ILIKE ?", like, like)
		}
		if role != "" {
			if !IsValidRole(role) {
				return nil, false
			}
			q = q.Where("role = ?", role)
		}
		switch activeStr {
		case "":
		case "true", "1":
			q = q.Where("active = ?", true)
		case "false", "0":
			q = q.Where("active = ?", false)
		default:
			return nil, false
		}
		return q, true
	}

	base, ok := applyFilters(a.DB.Model(&models.User{}))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role or active filter"})
		return
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	listQ, _ := applyFilters(a.DB.Model(&models.User{}))
	listQ = listQ.Order(order)
	if !all {
		offset := (page - 1) * limit
		listQ = listQ.Offset(offset).Limit(limit)
	}
	var users []models.User
	if err := listQ.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":         u.ID,
			"user_id":    u.UserID,
			"full_name":  u.FullName,
			"email":      u.Email,
			"role":       u.Role,
			"active":     u.Active,
			"created_at": u.CreatedAt,
			"updated_at": u.UpdatedAt,
		})
	}
	meta := gin.H{"total": total, "all": all}
	if !all {
		meta["limit"] = limit
		meta["page"] = page
		meta["sort_by"] = sortCol
		meta["sort_dir"] = sortDir
	}
	if qText != "" {
		meta["q"] = qText
	}
	if role != "" {
		meta["role"] = role
	}
	if activeStr != "" {
		meta["active"] = activeStr
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (a *AdminController) GetUser(c *gin.Context) {
	userID := c.Param("user_id")
	var u models.User
	if err := a.DB.Where("user_id = ?", userID).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         u.ID,
		"user_id":    u.UserID,
		"full_name":  u.FullName,
		"email":      u.Email,
		"role":       u.Role,
		"active":     u.Active,
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	})
}

type updateUserRequest struct {
	FullName *string         `json:"full_name"`
	Email    *string         `json:"email"`
	Password *FlexibleString `json:"password"`
	Role     *string         `json:"role"`
	Active   *bool           `json:"active"`
}

func (a *AdminController) UpdateUser(c *gin.Context) {
	userID := c.Param("user_id")
	var u models.User
	if err := a.DB.Where("user_id = ?", userID).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		if !IsValidRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil {
		raw := strings.TrimSpace(req.Password.String())
		if raw != "" {
			pw, err := utils.HashPassword(raw)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
				return
			}
			u.Password = pw
		}
	}

	if err := a.DB.Save(&u).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (a *AdminController) DeleteUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	var u models.User
	if err := a.DB.Where("user_id = ?", userID).First(&u).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		// Remove biometric data, tokens, and release codes tied to the user.
		// Violation records stay: the audit trail outlives the account.
		if err := tx.Where("student_id = ?", u.UserID).Delete(&models.EnrollmentRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id_ref = ?", u.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("issued_by = ?", u.ID).Delete(&models.ReleaseCode{}).Error; err != nil {
			return err
		}
		return tx.Delete(&u).Error
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
