package jobs

import (
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Route is the pipeline a source is sent through.
type Route string

const (
	RouteTabular Route = "tabular"
	RoutePages   Route = "pages"
)

// Source formats recorded on artifact packs and import batches.
const (
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatXLSX = "xlsx"
	FormatPDF  = pages.FormatPDF
	FormatText = pages.FormatText
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Dispatch picks the format and route for a source: by extension first,
// then by content type. Plain text goes to the tabular parser only when its
// first line is a delimited header naming a section column.
func Dispatch(p string, obj *blob.Object, parser *tabular.Parser) (string, Route, error) {
	format := formatFromExt(p)
	if format == "" {
		format = formatFromContentType(obj.ContentType)
	}

	switch format {
	case FormatCSV, FormatTSV, FormatXLSX:
		return format, RouteTabular, nil
	case FormatPDF:
		return format, RoutePages, nil
	case FormatText:
		if parser.LooksDelimited(obj.Data) {
			return format, RouteTabular, nil
		}
		return format, RoutePages, nil
	}
	return "", "", newError(models.ErrCodeUnsupportedFormat, fmt.Errorf("source %q with content type %q", p, obj.ContentType))
}

func formatFromExt(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	case ".pdf":
		return FormatPDF
	case ".txt":
		return FormatText
	}
	return ""
}

func formatFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "text/csv":
		return FormatCSV
	case "text/tab-separated-values":
		return FormatTSV
	case xlsxContentType:
		return FormatXLSX
	case "application/pdf":
		return FormatPDF
	case "text/plain":
		return FormatText
	}
	return ""
}
