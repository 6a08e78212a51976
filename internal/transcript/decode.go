// internal/transcript/decode.go
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
	"github.com/Corphon/TranscriptEditor/internal/models"
	"github.com/go-playground/validator/v10"
)

// InvalidFormatMessage prefixes every decode failure shown to the user.
const InvalidFormatMessage = "Invalid file format"

// Result is the tagged outcome of Decode: exactly one of Document and Err is set.
type Result struct {
	Document *models.TranscriptDocument
	Err      error
}

// OK reports whether the decode succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Document != nil
}

// wire shapes keep every field optional so presence can be checked after parsing.
type wireWord struct {
	ID    *int     `json:"id" validate:"required"`
	Start *float64 `json:"start" validate:"required"`
	End   *float64 `json:"end" validate:"required"`
	Text  *string  `json:"text" validate:"required"`
}

type wireParagraph struct {
	ID      *int     `json:"id" validate:"required"`
	Start   *float64 `json:"start" validate:"required"`
	End     *float64 `json:"end" validate:"required"`
	Speaker *string  `json:"speaker" validate:"required"`
}

type wireDocument struct {
	Words      []wireWord      `json:"words" validate:"required,dive"`
	Paragraphs []wireParagraph `json:"paragraphs" validate:"required,dive"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Decode parses raw transcript file content and checks it against the
// document schema. Syntax errors, type mismatches, missing fields and
// inverted time ranges all produce a failed Result.
func Decode(data []byte) Result {
	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return failed(err)
	}

	v := getValidator()
	if err := v.Struct(&wire); err != nil {
		return failed(describeValidation(err))
	}

	doc := &models.TranscriptDocument{
		Words:      make([]models.Word, 0, len(wire.Words)),
		Paragraphs: make([]models.Paragraph, 0, len(wire.Paragraphs)),
	}
	for _, w := range wire.Words {
		doc.Words = append(doc.Words, models.Word{ID: *w.ID, Start: *w.Start, End: *w.End, Text: *w.Text})
	}
	for _, p := range wire.Paragraphs {
		doc.Paragraphs = append(doc.Paragraphs, models.Paragraph{ID: *p.ID, Start: *p.Start, End: *p.End, Speaker: *p.Speaker})
	}

	if err := v.Struct(doc); err != nil {
		return failed(describeValidation(err))
	}

	return Result{Document: doc}
}

// DecodeString is a convenience wrapper over Decode.
func DecodeString(text string) Result {
	return Decode([]byte(text))
}

func failed(cause error) Result {
	return Result{Err: apperrors.NewValidationError(InvalidFormatMessage, cause)}
}

// describeValidation turns validator output into a single readable reason.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, describeField(fe))
	}
	return errors.New(strings.Join(reasons, "; "))
}

func describeField(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "gte":
		return fmt.Sprintf("%s must be >= %s", path, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", path, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be before %s", path, strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s check", path, fe.Tag())
	}
}
