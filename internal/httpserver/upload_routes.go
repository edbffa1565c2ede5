package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"supportchat/internal/config"
	"supportchat/internal/domain"
	"supportchat/internal/service"
	"supportchat/internal/store/blob"
)

// readUpload parses the multipart request, enforces the size ceiling and
// MIME allow-list, and stores the file. Returns the attachment descriptor
// and the client token carried alongside the file.
func readUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config, blobs domain.BlobStore) (*domain.Attachment, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(cfg.MaxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("%w: file exceeds size limit or malformed form", domain.ErrPayloadInvalid)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing file", domain.ErrPayloadInvalid)
	}
	defer file.Close()
	token := r.FormValue("client_token")

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > cfg.MaxUploadBytes {
		return nil, "", fmt.Errorf("%w: file exceeds size limit", domain.ErrPayloadInvalid)
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !mimeAllowed(mime, cfg.AllowedMimes) {
		return nil, "", fmt.Errorf("%w: file type %s is not allowed", domain.ErrPayloadInvalid, mime)
	}

	name := uuid.NewString() + filepath.Ext(header.Filename)
	url, err := blobs.Save(r.Context(), name, data)
	if err != nil {
		return nil, "", err
	}

	kind := "file"
	if strings.HasPrefix(mime, "image/") {
		kind = "image"
	}
	return &domain.Attachment{
		URL:  url,
		Name: header.Filename,
		Size: int64(len(data)),
		Mime: mime,
		Kind: kind,
	}, token, nil
}

func mimeAllowed(mime string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, mime) {
			return true
		}
	}
	return false
}

// discardUpload removes a blob that ended up unreferenced: the submit either
// failed or deduplicated against an earlier message, whose attachment points
// at the original file. Without this, retried uploads leak orphan files that
// archive's purge can never find.
func discardUpload(r *http.Request, blobs domain.BlobStore, att *domain.Attachment) {
	_ = blobs.Remove(r.Context(), path.Base(att.URL))
}

func handleWidgetUpload(
	cfg *config.Config,
	convSvc *service.ConversationService,
	msgSvc *service.MessageService,
	blobs domain.BlobStore,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		att, token, err := readUpload(w, r, cfg, blobs)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := msgSvc.Submit(r.Context(), service.SubmitInput{
			ConversationID: conv.ID,
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			ClientToken:    token,
			Attachment:     att,
		})
		if err != nil {
			discardUpload(r, blobs, att)
			writeError(w, err)
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			discardUpload(r, blobs, att)
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

func handleDashboardUpload(
	cfg *config.Config,
	msgSvc *service.MessageService,
	blobs domain.BlobStore,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		att, token, err := readUpload(w, r, cfg, blobs)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := msgSvc.Submit(r.Context(), service.SubmitInput{
			ConversationID: id,
			Role:           domain.RoleAgent,
			Source:         domain.SourceDashboard,
			ClientToken:    token,
			Attachment:     att,
		})
		if err != nil {
			discardUpload(r, blobs, att)
			writeError(w, err)
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			discardUpload(r, blobs, att)
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

// UploadRoutes serves stored attachment files. Mounted at /api/uploads.
func UploadRoutes(blobs *blob.LocalStore) chi.Router {
	r := chi.NewRouter()

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		path, err := blobs.Path(filename)
		if err != nil {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, path)
	})

	return r
}
