package constants

// Config messages
const (
	// MsgConfigLoadError is the error message when configuration loading fails.
	MsgConfigLoadError = "❌ Failed to load configuration: %v\n"

	// MsgConfigValidationError is the message when configuration validation fails.
	MsgConfigValidationError = "❌ Configuration validation failed:\n"

	// MsgConfigValid is the message when configuration is successfully loaded and validated.
	MsgConfigValid = "✅ Configuration loaded"

	// MsgConfigValidatePrefix is the prefix for configuration validation errors.
	MsgConfigValidatePrefix = "  - %v\n"
)

// Sweep messages
const (
	// MsgSweepResult reports the outcome of a sweep run from the CLI.
	MsgSweepResult = "🧹 Deleted %d file(s), %d error(s), %d skipped, %s freed in %s\n"

	// MsgStatsHeader is the header of the stats table.
	MsgStatsHeader = "DIRECTORY\tFILES\tSIZE_MB\tOLDEST_MIN\tNEWEST_MIN\tELIGIBLE\n"

	// MsgStatsRow is one row of the stats table.
	MsgStatsRow = "%s\t%d\t%.2f\t%.2f\t%.2f\t%d\n"

	// MsgStatsMissingRow is a stats row for a directory that does not exist yet.
	MsgStatsMissingRow = "%s\t-\t-\t-\t-\t-\n"
)

// HTTP messages
const (
	MsgNoFileSelected    = "No file selected"
	MsgPDFRequired       = "Please upload a PDF file"
	MsgImageRequired     = "Please upload an image file"
	MsgInvalidPassword   = "Invalid PDF password"
	MsgFileNotFound      = "File not found"
	MsgPreviewNotFound   = "Preview file not found"
	MsgEndpointNotFound  = "Endpoint not found"
	MsgFilesCleared      = "All files cleared successfully"
	MsgUnauthorized      = "Unauthorized"
	MsgFileTooLarge      = "File is too large"
	MsgImageTooLarge     = "Image dimensions are too large"
	MsgUnsupportedFormat = "Unsupported format"
	MsgInvalidQuality    = "Quality must be a whole number"
	MsgInvalidPDF        = "Could not read the PDF file"
	MsgInternalError     = "Internal server error"

	// MsgFilesNotCleared reports a force sweep that left files behind.
	MsgFilesNotCleared = "%d file(s) could not be deleted"

	// MsgCardCropped is the success message after cropping a card.
	MsgCardCropped = "%s card cropped successfully! File auto-deletes in %d minutes."

	// MsgPassportReady is the success message after building a passport photo.
	MsgPassportReady = "Passport photo ready! File auto-deletes in %d minutes."

	// MsgUploadReady is the success message after storing a PDF.
	MsgUploadReady = "PDF uploaded (%d page(s)). File auto-deletes in %d minutes."
)
