// Package artifacts classifies, lists and names the files an execution
// produced.
package artifacts

import (
	"path"
	"slices"
	"strings"

	"github.com/dukex/botportal/pkg/models"
)

// Kind is how a file can be previewed. Every kind is downloadable.
type Kind int

const (
	KindOther Kind = iota
	KindText
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return "other"
	}
}

var textExtensions = []string{"log", "txt", "json", "csv", "xml", "html", "md", "yaml", "yml", "ini", "cfg", "out", "err"}

var imageExtensions = []string{"png", "jpg", "jpeg", "gif", "webp", "bmp", "svg"}

// Classify derives the preview kind from the file name extension, ignoring case.
func Classify(name string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))

	switch {
	case ext == "":
		return KindOther
	case slices.Contains(textExtensions, ext):
		return KindText
	case slices.Contains(imageExtensions, ext):
		return KindImage
	default:
		return KindOther
	}
}

// Images returns the image files of an execution, logs first.
func Images(files *models.ExecutionFiles) []models.ExecutionFile {
	var images []models.ExecutionFile

	for _, file := range files.All() {
		if Classify(file.Name) == KindImage {
			images = append(images, file)
		}
	}

	return images
}

var (
	fromKeys = []string{"fecha_desde", "desde", "from"}
	toKeys   = []string{"fecha_hasta", "hasta", "to"}
)

// ZipFilename is the local name of the artifact archive of an execution.
func ZipFilename(execution models.Execution) string {
	bot := execution.BotID
	if bot == "" {
		bot = "bot"
	}

	bot = strings.ReplaceAll(bot, " ", "_")

	from := lookup(execution.InputData, fromKeys)
	to := lookup(execution.InputData, toKeys)

	if from != "" && to != "" {
		return "evidencia_" + bot + "_" + from + "_al_" + to + ".zip"
	}

	date := models.DatePart(execution.QueuedAt)
	if date == "" {
		date = "sin-fecha"
	}

	return "evidencia_" + bot + "_" + date + ".zip"
}

func lookup(input map[string]string, candidates []string) string {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	for _, candidate := range candidates {
		for _, key := range keys {
			if strings.EqualFold(key, candidate) && strings.TrimSpace(input[key]) != "" {
				return strings.TrimSpace(input[key])
			}
		}
	}

	return ""
}
