package app

import (
	"log/slog"
	"mime"
)

// downloadTypes covers every extension the storage layer hands back to
// clients; slim container images ship without /etc/mime.types.
var downloadTypes = map[string]string{
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv; charset=utf-8",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".png":  "image/png",
	".jpg":  "image/jpeg",
}

func init() {
	registerDownloadTypes(downloadTypes)
}

func registerDownloadTypes(types map[string]string) {
	for ext, typ := range types {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Default().Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
