package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/studydesk/internal/extract"
	"github.com/hyperjump/studydesk/internal/library"
	"github.com/hyperjump/studydesk/internal/models"
	"github.com/hyperjump/studydesk/internal/storage"
	"go.uber.org/zap"
)

// Upload rejection codes.
const (
	CodeFileTooLarge    = "LIMIT_FILE_SIZE"
	CodeTooManyFiles    = "LIMIT_FILE_COUNT"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
)

const (
	msgNoFiles          = "请选择文件"
	msgProcessFailed    = "文件处理失败"
	msgFileExists       = "文件已存在"
	msgFileNotFound     = "文件不存在"
	msgInvalidCategory  = "无效的文件分类"
	msgNameRequired     = "文件名不能为空"
	msgFileDataRequired = "缺少文件数据"
	msgInvalidPaths     = "无效的文件路径列表"
	msgSaveFailed       = "保存文件信息失败"
	msgDeleteFailed     = "删除文件失败"

	uploadFormField = "files"
)

type uploadedFileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

type uploadWarning struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Success       bool               `json:"success"`
	Files         []uploadedFileInfo `json:"files"`
	ExtractedText string             `json:"extractedText"`
	Message       string             `json:"message"`
	Warnings      []uploadWarning    `json:"warnings,omitempty"`
}

// handleUpload streams the multipart "files" parts into the staging directory,
// extracts their text and returns the joined corpus. A rejected request leaves
// no staged files behind.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Upload.MaxFileBytes
	maxFiles := s.config.Upload.MaxFiles
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*int64(maxFiles+1)+1<<20)

	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, msgNoFiles)
		return
	}

	var staged []extract.UploadedFile
	reject := func(code, message string) {
		s.library.Discard(staged)
		s.logger.Info("Upload rejected", zap.String("code", code), zap.String("reason", message))
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": message, "code": code})
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.library.Discard(staged)
			s.respondError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		name := part.FileName()
		if part.FormName() != uploadFormField || name == "" {
			part.Close()
			continue
		}
		if len(staged) >= maxFiles {
			part.Close()
			reject(CodeTooManyFiles, fmt.Sprintf("最多只能上传 %d 个文件", maxFiles))
			return
		}

		mimeType := part.Header.Get("Content-Type")
		sniff := extract.Inconclusive(mimeType, name)
		if !sniff && !extract.DetectFormat(mimeType, name).Uploadable() {
			part.Close()
			reject(CodeUnsupportedType, unsupportedMessage(name, mimeType))
			return
		}

		f, err := s.library.Stage(part, name, mimeType, maxBytes)
		part.Close()
		if errors.Is(err, library.ErrFileTooLarge) {
			reject(CodeFileTooLarge, fmt.Sprintf("文件 %s 超过 %d MB 的大小限制", name, maxBytes>>20))
			return
		}
		if err != nil {
			s.library.Discard(staged)
			s.respondInternal(w, "upload: stage failed", msgProcessFailed, err)
			return
		}
		staged = append(staged, f)

		if sniff {
			content, err := os.ReadFile(f.Path)
			if err != nil {
				s.library.Discard(staged)
				s.respondInternal(w, "upload: read staged file failed", msgProcessFailed, err)
				return
			}
			if !extract.SniffFormat(content).Uploadable() {
				reject(CodeUnsupportedType, unsupportedMessage(name, mimeType))
				return
			}
		}
	}

	if len(staged) == 0 {
		s.respondError(w, http.StatusBadRequest, msgNoFiles)
		return
	}

	result := s.extractor.ExtractAll(staged)
	resp := uploadResponse{
		Success:       true,
		Files:         make([]uploadedFileInfo, 0, len(staged)),
		ExtractedText: result.Corpus,
		Message:       fmt.Sprintf("成功处理 %d 个文件", len(staged)),
	}
	for _, f := range staged {
		resp.Files = append(resp.Files, uploadedFileInfo{Name: f.OriginalName, Size: f.Size, Path: f.Path})
	}
	for _, fail := range result.Failures {
		resp.Warnings = append(resp.Warnings, uploadWarning{Name: fail.FileName, Error: fail.ErrorReason})
	}
	s.logger.Info("Upload processed",
		zap.Int("files", len(staged)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("corpus_bytes", len(result.Corpus)))
	s.respondJSON(w, http.StatusOK, resp)
}

func unsupportedMessage(name, mimeType string) string {
	if mimeType == "" {
		return extract.ReasonUnsupported + ": " + name
	}
	return extract.ReasonUnsupported + ": " + mimeType
}

// fileData is the client's description of a staged upload. The server assigns
// id and uploadDate.
type fileData struct {
	Title     string   `json:"title"`
	Name      string   `json:"name"`
	FileType  string   `json:"fileType"`
	IconClass string   `json:"iconClass"`
	Size      string   `json:"size"`
	FilePath  *string  `json:"filePath"`
	Tags      []string `json:"tags"`
	Week      *int     `json:"week"`
	Subject   string   `json:"subject"`
	Subtype   string   `json:"subtype"`
}

func (d fileData) record() models.FileRecord {
	return models.FileRecord{
		Title:     d.Title,
		Name:      d.Name,
		FileType:  d.FileType,
		IconClass: d.IconClass,
		Size:      d.Size,
		FilePath:  d.FilePath,
		Tags:      d.Tags,
		Week:      d.Week,
		Subject:   d.Subject,
		Subtype:   d.Subtype,
	}
}

type saveFileRequest struct {
	Category string    `json:"category"`
	FileData *fileData `json:"fileData"`
}

func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	var req saveFileRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	c, ok := models.ParseCategory(req.Category)
	if !ok {
		s.respondError(w, http.StatusBadRequest, msgInvalidCategory)
		return
	}
	if req.FileData == nil {
		s.respondError(w, http.StatusBadRequest, msgFileDataRequired)
		return
	}

	rec, err := s.library.Save(r.Context(), c, req.FileData.record())
	var dup *storage.DuplicateError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "fileId": rec.ID, "file": rec})
	case errors.As(err, &dup):
		s.respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": msgFileExists, "existingFile": dup.Existing})
	case errors.Is(err, library.ErrNameRequired):
		s.respondError(w, http.StatusBadRequest, msgNameRequired)
	default:
		s.respondInternal(w, "save file record failed", msgSaveFailed, err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	c, ok := models.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, msgInvalidCategory)
		return
	}
	id := chi.URLParam(r, "fileId")
	_, err := s.library.Delete(r.Context(), c, id)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, msgFileNotFound)
	default:
		s.respondInternal(w, "delete file record failed", msgDeleteFailed, err)
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FilePaths json.RawMessage `json:"filePaths"`
	}
	if !s.decodeJSON(w, r, &body) {
		return
	}
	var paths []string
	if len(body.FilePaths) == 0 || json.Unmarshal(body.FilePaths, &paths) != nil || paths == nil {
		s.respondError(w, http.StatusBadRequest, msgInvalidPaths)
		return
	}
	results := s.library.Cleanup(paths)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "results": results})
}
