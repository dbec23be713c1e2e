// Package classify infers the modality and a suggested ML task for an
// uploaded artifact from a bounded content sample.
package classify

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"prepline/internal/domain"
)

// DefaultSampleSize bounds how much of an artifact the classifier reads.
const DefaultSampleSize = 64 * 1024

// Result is the classifier's verdict. A zero-confidence unknown modality is a
// reported condition the caller must resolve with the user, never an error.
type Result struct {
	Modality      domain.Modality `json:"modality"`
	Confidence    float64         `json:"confidence"`
	SuggestedTask domain.TaskType `json:"suggested_task"`
	ContentType   string          `json:"content_type"`
}

// Uncertain reports whether the caller should ask the user to confirm or
// supply the modality explicitly.
func (r Result) Uncertain() bool {
	return r.Modality == domain.ModalityUnknown || r.Confidence < 0.7
}

// Detect classifies a content sample. Sniffing runs on structural signatures
// first; the declared filename extension is only a fallback and lowers
// confidence. Ties between candidates break on the fixed priority
// tabular > image > audio > video > text.
func Detect(filename string, sample []byte) Result {
	if len(sample) == 0 {
		return fromExtension(filename, nil)
	}

	if modality, contentType, ok := sniffBinary(sample); ok {
		return Result{
			Modality:      modality,
			Confidence:    0.98,
			SuggestedTask: suggestTask(modality, nil),
			ContentType:   contentType,
		}
	}

	text := decodeTextSample(sample)
	if text == nil {
		// Binary content with no known signature.
		return fromExtension(filename, sample)
	}

	if shape, ok := sniffTabular(text); ok {
		return Result{
			Modality:      domain.ModalityTabular,
			Confidence:    0.95,
			SuggestedTask: suggestTask(domain.ModalityTabular, shape),
			ContentType:   shape.contentType,
		}
	}

	if looksTextual(text) {
		return Result{
			Modality:      domain.ModalityText,
			Confidence:    0.85,
			SuggestedTask: suggestTask(domain.ModalityText, nil),
			ContentType:   "text/plain",
		}
	}

	return fromExtension(filename, sample)
}

// binary container signatures, checked in the fixed priority order.
var magicSignatures = []struct {
	modality    domain.Modality
	contentType string
	match       func(b []byte) bool
}{
	{domain.ModalityImage, "image/png", prefix("\x89PNG\r\n\x1a\n")},
	{domain.ModalityImage, "image/jpeg", prefix("\xff\xd8\xff")},
	{domain.ModalityImage, "image/gif", anyPrefix("GIF87a", "GIF89a")},
	{domain.ModalityImage, "image/webp", riffForm("WEBP")},
	{domain.ModalityImage, "image/bmp", prefix("BM")},
	{domain.ModalityAudio, "audio/wav", riffForm("WAVE")},
	{domain.ModalityAudio, "audio/mpeg", anyPrefix("ID3", "\xff\xfb", "\xff\xf3", "\xff\xf2")},
	{domain.ModalityAudio, "audio/flac", prefix("fLaC")},
	{domain.ModalityAudio, "audio/ogg", prefix("OggS")},
	{domain.ModalityAudio, "audio/mp4", ftypBrand("M4A ")},
	{domain.ModalityVideo, "video/mp4", ftypAny},
	{domain.ModalityVideo, "video/webm", prefix("\x1aE\xdf\xa3")},
	{domain.ModalityVideo, "video/x-msvideo", riffForm("AVI ")},
}

func sniffBinary(sample []byte) (domain.Modality, string, bool) {
	for _, sig := range magicSignatures {
		if sig.match(sample) {
			return sig.modality, sig.contentType, true
		}
	}
	return domain.ModalityUnknown, "", false
}

func prefix(p string) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, []byte(p)) }
}

func anyPrefix(prefixes ...string) func([]byte) bool {
	return func(b []byte) bool {
		for _, p := range prefixes {
			if bytes.HasPrefix(b, []byte(p)) {
				return true
			}
		}
		return false
	}
}

// riffForm matches RIFF containers by their form type (WAVE, AVI , WEBP).
func riffForm(form string) func([]byte) bool {
	return func(b []byte) bool {
		return len(b) >= 12 && bytes.HasPrefix(b, []byte("RIFF")) && string(b[8:12]) == form
	}
}

// ftypBrand matches ISO base media files by major brand at offset 8.
func ftypBrand(brand string) func([]byte) bool {
	return func(b []byte) bool {
		return len(b) >= 12 && string(b[4:8]) == "ftyp" && string(b[8:12]) == brand
	}
}

func ftypAny(b []byte) bool {
	return len(b) >= 8 && string(b[4:8]) == "ftyp"
}

// decodeTextSample returns the sample transcoded to UTF-8, honoring UTF-16
// byte order marks, or nil when the content is not plausibly text.
func decodeTextSample(sample []byte) []byte {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, sample)
	if err != nil {
		return nil
	}
	if !utf8.Valid(decoded) {
		return nil
	}
	// Reject samples dominated by control bytes.
	control := 0
	for _, b := range decoded {
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			control++
		}
	}
	if len(decoded) > 0 && float64(control)/float64(len(decoded)) > 0.05 {
		return nil
	}
	return decoded
}

// tableShape summarizes the delimiter structure found in a tabular sample.
type tableShape struct {
	delimiter   rune
	contentType string
	header      []string
	rows        [][]string
}

var delimiterCandidates = []struct {
	r           rune
	contentType string
}{
	{',', "text/csv"},
	{'\t', "text/tab-separated-values"},
	{';', "text/csv"},
	{'|', "text/csv"},
}

// sniffTabular detects delimiter/row-shape structure: at least two lines
// sharing a consistent field count above one. JSON arrays of flat objects
// also count as tabular.
func sniffTabular(text []byte) (*tableShape, bool) {
	trimmed := bytes.TrimLeft(text, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		if shape, ok := sniffJSONRecords(trimmed); ok {
			return shape, true
		}
		return nil, false
	}

	lines := completeLines(string(text))
	if len(lines) < 2 {
		return nil, false
	}

	for _, cand := range delimiterCandidates {
		counts := make([]int, 0, len(lines))
		for _, line := range lines {
			counts = append(counts, strings.Count(line, string(cand.r)))
		}
		if counts[0] == 0 {
			continue
		}
		consistent := true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
				break
			}
		}
		if !consistent {
			continue
		}
		shape := &tableShape{delimiter: cand.r, contentType: cand.contentType}
		shape.header = splitFields(lines[0], cand.r)
		for _, line := range lines[1:] {
			shape.rows = append(shape.rows, splitFields(line, cand.r))
		}
		return shape, true
	}
	return nil, false
}

// completeLines drops a trailing partial line so a truncated sample never
// skews the shape analysis.
func completeLines(s string) []string {
	endsComplete := strings.HasSuffix(s, "\n")
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	var out []string
	for _, line := range lines {
		if line != "" {
			out = append(out, line)
		}
	}
	if !endsComplete && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}

func splitFields(line string, delim rune) []string {
	fields := strings.Split(line, string(delim))
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

func looksTextual(text []byte) bool {
	if len(text) == 0 {
		return false
	}
	letters := 0
	for _, r := range string(text) {
		if r == utf8.RuneError {
			return false
		}
		if r >= 0x20 || r == '\n' || r == '\t' || r == '\r' {
			letters++
		}
	}
	return float64(letters)/float64(utf8.RuneCount(text)) > 0.95
}

var extensionModalities = map[string]struct {
	modality    domain.Modality
	contentType string
}{
	".csv":  {domain.ModalityTabular, "text/csv"},
	".tsv":  {domain.ModalityTabular, "text/tab-separated-values"},
	".txt":  {domain.ModalityText, "text/plain"},
	".json": {domain.ModalityText, "application/json"},
	".md":   {domain.ModalityText, "text/markdown"},
	".jpg":  {domain.ModalityImage, "image/jpeg"},
	".jpeg": {domain.ModalityImage, "image/jpeg"},
	".png":  {domain.ModalityImage, "image/png"},
	".gif":  {domain.ModalityImage, "image/gif"},
	".webp": {domain.ModalityImage, "image/webp"},
	".bmp":  {domain.ModalityImage, "image/bmp"},
	".wav":  {domain.ModalityAudio, "audio/wav"},
	".mp3":  {domain.ModalityAudio, "audio/mpeg"},
	".flac": {domain.ModalityAudio, "audio/flac"},
	".ogg":  {domain.ModalityAudio, "audio/ogg"},
	".m4a":  {domain.ModalityAudio, "audio/mp4"},
	".mp4":  {domain.ModalityVideo, "video/mp4"},
	".mov":  {domain.ModalityVideo, "video/quicktime"},
	".avi":  {domain.ModalityVideo, "video/x-msvideo"},
	".mkv":  {domain.ModalityVideo, "video/x-matroska"},
	".webm": {domain.ModalityVideo, "video/webm"},
}

// fromExtension is the low-confidence fallback when content sniffing is
// inconclusive.
func fromExtension(filename string, sample []byte) Result {
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := extensionModalities[ext]; ok {
		return Result{
			Modality:      m.modality,
			Confidence:    0.6,
			SuggestedTask: suggestTask(m.modality, nil),
			ContentType:   m.contentType,
		}
	}
	return Result{
		Modality:      domain.ModalityUnknown,
		Confidence:    0,
		SuggestedTask: domain.TaskAuto,
		ContentType:   "application/octet-stream",
	}
}
