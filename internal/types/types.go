// Package types defines shared data structures and typed errors used across
// the PDF translation pipeline.
package types

// Config holds the application configuration
type Config struct {
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"`
	OpenAIModel   string `json:"openai_model"`

	// SourceLanguage and TargetLanguage are BCP 47 style codes ("en", "zh").
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`

	// LayoutModelPath points at the DocLayout-YOLO ONNX model file.
	LayoutModelPath string `json:"layout_model_path"`
	// OnnxRuntimePath optionally points at the onnxruntime shared library.
	OnnxRuntimePath string `json:"onnxruntime_path"`

	// LatinFontPath and TargetFontPath are the two always-present output fonts.
	LatinFontPath  string `json:"latin_font_path"`
	TargetFontPath string `json:"target_font_path"`

	// WorkerBudget is the global concurrency budget shared by page workers
	// and per-page paragraph translation workers.
	WorkerBudget int `json:"worker_budget"`
	// MaxRetries bounds per-paragraph translation attempts.
	MaxRetries int `json:"max_retries"`

	// LineHeights maps a target language code to its default interline
	// line-height factor. Values are empirical and tunable.
	LineHeights map[string]float64 `json:"line_heights,omitempty"`

	CacheDir string `json:"cache_dir"`
	WorkDir  string `json:"work_dir"`
}

// ProgressCallback reports document translation progress in percent (0-100).
type ProgressCallback func(percent int, message string)

// TranslateResult is the outcome of translating one document.
type TranslateResult struct {
	InputPath string `json:"input_path"`
	MonoPath  string `json:"mono_path"`
	DualPath  string `json:"dual_path"`

	PageCount      int `json:"page_count"`
	ParagraphCount int `json:"paragraph_count"`

	// FallbackParagraphs counts paragraphs emitted with their original,
	// untranslated text after the retry budget was exhausted.
	FallbackParagraphs int `json:"fallback_paragraphs"`
	// SkippedOperators counts malformed content stream operators that were
	// skipped during interpretation.
	SkippedOperators int `json:"skipped_operators"`
	// ResourceFailures counts pages whose font resource injection failed.
	ResourceFailures int `json:"resource_failures"`
	// CachedParagraphs counts paragraphs served from the translation cache.
	CachedParagraphs int `json:"cached_paragraphs"`
}

// ErrorCode classifies application errors
type ErrorCode string

const (
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrParse        ErrorCode = "PARSE_ERROR"
	ErrLayoutModel  ErrorCode = "LAYOUT_MODEL_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
	ErrResource     ErrorCode = "RESOURCE_ERROR"
	ErrFontFallback ErrorCode = "FONT_FALLBACK_ERROR"
	ErrAssemble     ErrorCode = "ASSEMBLE_ERROR"
	ErrSubset       ErrorCode = "SUBSET_ERROR"
	ErrDownload     ErrorCode = "DOWNLOAD_ERROR"
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError is the application error type carrying a stable code, a
// human-readable message and an optional wrapped cause.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// IsFatal reports whether an error code aborts the whole document. Only the
// layout model being unavailable is fatal; every other class degrades to
// keeping the original content at the smallest containing unit.
func IsFatal(code ErrorCode) bool {
	return code == ErrLayoutModel
}
