package controllers

import (
	"errors"
	"net/http"
	"path"

	"lendingapp/storage"
	"lendingapp/utils"

	"github.com/gorilla/mux"
)

// FileController отдает объекты хранилища по подписанной ссылке
type FileController struct {
	bucket storage.Bucket
}

func NewFileController(bucket storage.Bucket) *FileController {
	return &FileController{bucket: bucket}
}

// Serve отдает объект, если подпись sig совпала
func (c *FileController) Serve(w http.ResponseWriter, r *http.Request) {
	key := muxVar(r, "key")

	f, err := c.bucket.Open(key, r.URL.Query().Get("sig"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidSignature):
			writeMessage(w, http.StatusForbidden, "Invalid signature")
		case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrInvalidKey):
			writeMessage(w, http.StatusNotFound, "File not found")
		default:
			utils.LogError("Ошибка открытия файла %s: %v", key, err)
			writeMessage(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		utils.LogError("Ошибка чтения файла %s: %v", key, err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, path.Base(key), info.ModTime(), f)
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
