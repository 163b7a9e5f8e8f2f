package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"snapkit/internal/entity"
	"snapkit/internal/entity/converter"
	"snapkit/internal/service"
	"snapkit/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// multipart 表单额外开销
const formOverheadBytes = 1 << 20

// CreateGeneration 接收 multipart 上传或 JSON（base64/data URL）并生成社媒素材包
func (h *HTTPHandler) CreateGeneration(c *gin.Context) {
	user := CurrentUser(c)

	maxBytes := h.cfg.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes*2+formOverheadBytes)

	var (
		image []byte
		cfg   entity.SocialKitConfig
		err   error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		image, cfg, err = readMultipartGeneration(c, maxBytes)
	} else {
		image, cfg, err = readJSONGeneration(c)
	}
	if err != nil {
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	out, err := h.generations.Generate(c.Request.Context(), service.GenerateInput{
		UserID: user.ID,
		Image:  image,
		Config: cfg,
	})
	if err != nil {
		ServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entity.GenerateResponse{
		Generation:               converter.GenerationToItem(out.Generation, h.storage.PublicURL),
		Attempts:                 out.Attempts,
		FreeGenerationsRemaining: out.FreeGenerationsRemaining,
	})
}

func readMultipartGeneration(c *gin.Context, maxBytes int64) ([]byte, entity.SocialKitConfig, error) {
	cfg := entity.DefaultSocialKitConfig()

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, cfg, fmt.Errorf("image is required")
	}
	if fileHeader.Size > maxBytes {
		return nil, cfg, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to read image: %w", err)
	}

	cfg.Tone = c.PostForm("tone")
	cfg.Language = c.PostForm("language")
	cfg.Platforms = splitPlatforms(c.PostFormArray("platforms"))
	if raw := strings.TrimSpace(c.PostForm("include_emoji")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, cfg, fmt.Errorf("include_emoji must be a boolean")
		}
		cfg.IncludeEmoji = include
	}
	return data, cfg, nil
}

func readJSONGeneration(c *gin.Context) ([]byte, entity.SocialKitConfig, error) {
	cfg := entity.DefaultSocialKitConfig()

	var req entity.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, cfg, fmt.Errorf("invalid generation payload")
	}
	data, _, err := utils.DecodeMediaPayload(req.Image)
	if err != nil {
		return nil, cfg, fmt.Errorf("invalid image: %w", err)
	}

	cfg.Tone = req.Tone
	cfg.Language = req.Language
	cfg.Platforms = splitPlatforms(req.Platforms)
	if req.IncludeEmoji != nil {
		cfg.IncludeEmoji = *req.IncludeEmoji
	}
	return data, cfg, nil
}

// splitPlatforms 同时支持重复字段与逗号分隔
func splitPlatforms(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (h *HTTPHandler) ListGenerations(c *gin.Context) {
	user := CurrentUser(c)

	var params entity.BaseParams
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}
	params.Normalize(20, 100)

	resp, err := h.history.List(c.Request.Context(), user.ID, params)
	if err != nil {
		ServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetGeneration(c *gin.Context) {
	user := CurrentUser(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid generation id")
		return
	}

	item, err := h.history.Get(c.Request.Context(), id, service.Requester{UserID: user.ID, IsAdmin: user.IsAdmin()})
	if err != nil {
		ServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *HTTPHandler) DeleteGeneration(c *gin.Context) {
	user := CurrentUser(c)

	id, ok := parseIDParam(c, "id")
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "invalid generation id")
		return
	}

	if err := h.history.Delete(c.Request.Context(), id, user.ID); err != nil {
		ServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "generation_id": id}).Debug("generation removed by owner")
	c.Status(http.StatusNoContent)
}
