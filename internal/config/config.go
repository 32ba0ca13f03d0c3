package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Go-Ketchup/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "Ketchup"
	AppID             = "com.github.tartampluch.go-ketchup"
	KeyringService    = "com.github.tartampluch.go-ketchup"
	LocalhostBindAddr = "127.0.0.1"
	LogFileName       = "app.log"
	EnvFileName       = ".env"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for logs and the local contact store.
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	CmdRoot    = "ketchup"
	CmdVersion = "version"
	CmdQueue   = "queue"
	CmdSession = "session"
	CmdImport  = "import"
	CmdSeed    = "seed"
	CmdServe   = "serve"

	FlagDebug    = "debug"
	FlagDataDir  = "data-dir"
	FlagStore    = "store"
	FlagQuery    = "query"
	FlagLimit    = "limit"
	FlagURL      = "url"
	FlagUser     = "user"
	FlagPort     = "port"
	FlagLanguage = "lang"

	FlagDescDebug    = "Enable debug logging to stdout"
	FlagDescDataDir  = "Directory holding the contact store"
	FlagDescStore    = "Contact store backend (file, yaml or sqlite)"
	FlagDescQuery    = "Only include contacts whose name contains this text"
	FlagDescLimit    = "Maximum number of contacts to print (0 = all)"
	FlagDescURL      = "CardDAV/WebDAV address book URL"
	FlagDescUser     = "Username for the address book (password read from the OS keyring)"
	FlagDescPort     = "Port for the HTTP API and calendar feed"
	FlagDescLanguage = "Language for feed summaries and messages (en, fr)"

	DescRoot    = "Rank the people you want to keep in touch with"
	DescVersion = "Show application version and exit"
	DescQueue   = "Print the prioritized catch-up queue"
	DescSession = "Run an interactive catch-up session on the terminal"
	DescImport  = "Import contacts from a vCard file or a CardDAV address book"
	DescSeed    = "Load the demo contacts into the store"
	DescServe   = "Serve the HTTP API and the due-date calendar feed"

	ArgsImport = " [file.vcf]"

	MsgVersionOutput = "%s version %s (%s/%s)\n"
	MsgImportOutput  = "Imported %d of %d cards (%d skipped)\n"
	MsgSeedOutput    = "Loaded the demo contacts into %s\n"
	MsgQueueLine     = "%d.\t%s\t%s\t%s\t%s\t%s\n"
	MsgLinkLine      = "    %s\n"
	MsgServeOutput   = "Serving on http://%s (calendar at %s)\n"
	MsgCtxCancel     = "Shutdown signal received"
	MsgRefreshSignal = "Refresh signal received"
	ErrImportSource  = "import needs a .vcf file or --url"
)

// Interactive session keys.
const (
	KeyDefer  = "d"
	KeyPick   = "p"
	KeyCall   = "c"
	KeyText   = "t"
	KeyCancel = "x"
	KeyQuit   = "q"
)

// -----------------------------------------------------------------------------
// Environment Variables
// -----------------------------------------------------------------------------

const (
	EnvDataDir        = "KETCHUP_DATA_DIR"
	EnvStore          = "KETCHUP_STORE"
	EnvPort           = "KETCHUP_PORT"
	EnvLanguage       = "KETCHUP_LANGUAGE"
	EnvCardDAVURL     = "KETCHUP_CARDDAV_URL"
	EnvCardDAVUser    = "KETCHUP_CARDDAV_USER"
	EnvRefreshMin     = "KETCHUP_REFRESH_MIN"
	EnvReminder       = "KETCHUP_REMINDER"
	EnvReminderTrig   = "KETCHUP_REMINDER_TRIGGER"
	EnvWeightOverdue  = "KETCHUP_WEIGHT_OVERDUE"
	EnvWeightSignal   = "KETCHUP_WEIGHT_SIGNAL"
	EnvWeightAffinity = "KETCHUP_WEIGHT_AFFINITY"
	EnvSignalBoost    = "KETCHUP_SIGNAL_BOOST"
	EnvDefaultCadence = "KETCHUP_DEFAULT_CADENCE"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyEvtSummary      = "event_summary"       // Requires Name
	TKeyEvtSummaryNever = "event_summary_never" // Requires Name
	TKeyEvtDescription  = "event_description"   // Requires Days
	TKeySMSBody         = "sms_body"
	TKeyQueueHeader     = "queue_header"  // Requires Count, plural
	TKeyQueueEmpty      = "queue_empty"
	TKeySessionPrompt   = "session_prompt"
	TKeySessionCurrent  = "session_current" // Requires Name, Remaining
	TKeySessionPicked   = "session_picked"  // Requires Name
	TKeySessionDone     = "session_done"
	TKeyNeverContacted  = "never_contacted"
	TKeyDueIn           = "due_in" // Requires Days, plural
	TKeyDueNow          = "due_now"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	// DefaultCadenceDays applies to custom cadences without a positive
	// interval and to unknown frequency values.
	DefaultCadenceDays = 30

	// NeverContactedDays stands in for days-since-contact when a contact has
	// no recorded last contact. It must dominate any plausible real gap.
	NeverContactedDays = 9999

	// Score weights and the per-signal boost.
	DefaultWeightOverdue  = 1.5
	DefaultWeightSignal   = 1.2
	DefaultWeightAffinity = 1.0
	DefaultSignalBoost    = 10.0

	// Affinity bounds are a producer convention; the scorer does not clamp.
	MinAffinity = 0
	MaxAffinity = 10

	HoursPerDay = 24

	StoreKindFile   = "file"
	StoreKindYAML   = "yaml"
	StoreKindSQLite = "sqlite"

	DefaultStoreKind  = StoreKindFile
	DefaultPort       = "18081"
	DefaultRefreshMin = 60
	DefaultLanguage   = "en"
	DefaultQueueLimit = 0
	DefaultUpNext     = 6

	// DefaultReminderTrigger fires the feed alarm on the due date morning.
	DefaultReminderTrigger = "PT9H"

	StoreFileJSON = "contacts.json"
	StoreFileYAML = "contacts.yaml"
	StoreFileDB   = "ketchup.db"

	SQLiteDriver = "sqlite"
	SQLiteMemory = ":memory:"

	// DefaultFrequency applies to imported contacts without an explicit cadence.
	DefaultFrequency = "monthly"

	// SignalWindowDays is how far ahead a birthday or anniversary still
	// counts as a signal at import time.
	SignalWindowDays = 14

	SourceVCard   = "vcard"
	SourceCardDAV = "carddav"

	// UIDNamespace scopes deterministic contact IDs derived from vCard data.
	UIDNamespace = "https://github.com/tartampluch/go-ketchup/contact"
	UIDSeparator = "|"
)

// Outreach link formats.
const (
	SchemeTel     = "tel:"
	SchemeSMS     = "sms:"
	SMSBodyParam  = "?&body="
	DefaultSMSMsg = "Hey! Free now, want to catch up?"
)

// Touch actions recorded when a picked contact is resolved.
const (
	ActionCall = "call"
	ActionText = "text"
	ActionNone = "none"
)

// SupportedLanguages defines the list of available message languages (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	// iCal Properties
	ICalVersion   = "2.0"
	ICalProdid    = "-//Go Ketchup//Feed//EN"
	ICalCalName   = "Catch-ups"
	ICalMethod    = "PUBLISH"
	ICalScale     = "GREGORIAN"
	ICalComponent = "VALARM"
	ICalAction    = "DISPLAY"
	ICalDomain    = "goketchup"

	// iCal Fields
	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTStamp     = "DTSTAMP"
	PropRefresh     = "REFRESH-INTERVAL"
	PropAction      = "ACTION"
	PropDescription = "DESCRIPTION"
	PropTrigger     = "TRIGGER"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"
	PropCategories  = "CATEGORIES"

	// vCard extension properties understood by the importer.
	VCardXFrequency     = "X-KETCHUP-FREQUENCY"
	VCardXInterval      = "X-KETCHUP-INTERVAL"
	VCardXAffinity      = "X-KETCHUP-AFFINITY"
	VCardXLastContacted = "X-KETCHUP-LAST-CONTACTED"
	VCardXIncluded      = "X-KETCHUP-INCLUDED"

	DefaultICalRefresh = 1 * time.Hour
)

// -----------------------------------------------------------------------------
// Data Formats, Limits & File Extensions
// -----------------------------------------------------------------------------

const (
	// Date layouts used for parsing vCard BDAY/ANNIVERSARY fields
	DateFormatFullDash  = "2006-01-02"
	DateFormatFullBasic = "20060102"
	DateFormatRFC3339   = time.RFC3339
	DateFormatFullT     = "2006-01-02T15:04:05Z"
	DateFormatNoYearD   = "--01-02"
	DateFormatNoYearB   = "--0102"
	DefaultLeapYear     = 2000 // Leap year fallback for dates like --02-29

	// Limits
	MinPort = 1
	MaxPort = 65535

	// MaxCardFailures is how many vCards in a row may fail to decode before
	// the stream is considered broken rather than merely containing bad cards.
	MaxCardFailures = 8

	// UID Generation
	FormatUID = "%s-%s@%s"

	// File Extensions
	ExtYAML = ".yaml"
	ExtYML  = ".yml"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	RetryAfterSeconds   = "10"
	MaxHTTPResponseSize = 64 * 1024 * 1024 // 64MB
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	AddrSeparator       = ":"

	RouteCalendar       = "/calendar.ics"
	RouteAPI            = "/api"
	RouteHealth         = "/health"
	RouteContacts       = "/contacts"
	RouteContact        = "/contacts/{id}"
	RouteQueue          = "/queue"
	RouteSession        = "/session"
	RouteSessionStart   = "/session/start"
	RouteSessionDefer   = "/session/defer"
	RouteSessionPick    = "/session/pick"
	RouteSessionResolve = "/session/resolve"
	RouteSessionCancel  = "/session/cancel"

	ParamID    = "id"
	ParamQuery = "q"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderAccept          = "Accept"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeJSON            = "application/json"
	MimeVCard           = "text/vcard"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// AcceptVCard prefers RFC 6350 vCards but still takes older exports.
	AcceptVCard = MimeVCard + ", text/x-vcard;q=0.9, */*;q=0.1"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrLocalPathEmpty    = "configuration error: local path is empty"
	ErrFetcherMissing    = "internal error: network fetcher is not initialized"
	ErrStoreUnsupported  = "configuration error: unsupported store kind"
	ErrServerStartup     = "server startup failed"
	ErrServerShutdown    = "server shutdown failed"
	ErrPortRequired      = "server port is required"
	ErrPortNumber        = "server port must be a number"
	ErrPortRange         = "server port must be between 1 and 65535"
	ErrRefreshInterval   = "refresh interval must not be negative"
	ErrDefaultCadence    = "default cadence must be positive"
	ErrWeightNegative    = "score weights must not be negative"
	ErrInvalidURL        = "invalid URL structure"
	ErrProtocol          = "unsupported protocol scheme (http/https only)"
	ErrRequestBuild      = "failed to build address book request"
	ErrNetwork           = "network error during address book fetch"
	ErrHTTPStatus        = "address book server returned unexpected status"
	ErrResponseTooLarge  = "address book response exceeds size limit"
	ErrVCardParse        = "failed to parse vCard stream"
	ErrVCardRead         = "address book stream kept failing"
	ErrICalEncode        = "failed to encode iCalendar data"
	ErrDateParse         = "unable to parse date"
	ErrLogFile           = "failed to open log file"
	ErrCacheDir          = "could not determine user cache dir"
	ErrCreateDir         = "could not create app cache dir"
	ErrAppFailed         = "application failed unexpectedly"
	ErrWriteResp         = "failed to write response body"
	ErrLocalesAccess     = "failed to access embedded locales"
	ErrLocaleLoad        = "failed to load locale file"
	ErrEnvFile           = "failed to load environment file"
	ErrInvalidTransition = "invalid session transition"
	ErrNotFound          = "contact not found"
	ErrStoreOpen         = "failed to open contact store"
	ErrStoreRead         = "failed to read contact store"
	ErrStoreWrite        = "failed to write contact store"
	ErrMigrate           = "failed to migrate database"
	ErrUnknownAction     = "unknown action"
	ErrInvalidJSON       = "invalid json"
	ErrKeyring           = "failed to read password from keyring"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgInitializing = "Calendar initializing, please try again shortly."
	HTTPMsgInternalErr  = "Internal Server Error"
	HTTPStatusOK        = "ok"
)

// -----------------------------------------------------------------------------
// Fallbacks & Defaults
// -----------------------------------------------------------------------------

const (
	FallbackSummary      = "Catch up with %s"
	FallbackSummaryNever = "Reach out to %s"
	FallbackDescription  = "Due every %d days"

	// StubVCalendar is the minimal valid iCalendar object used when no events are found.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"

	MsgImportStarted  = "Contact import started"
	MsgImportDone     = "Contact import finished"
	MsgRefreshReq     = "Refresh requested"
	MsgRefreshFailed  = "Refresh failed"
	MsgWorkerStart    = "Background worker started"
	MsgWorkerStop     = "Worker stopping due to context cancellation"
	MsgAppStop        = "Application stopped gracefully"
	MsgSkippedCard    = "Skipping malformed vCard"
	MsgSkippedDate    = "Skipping invalid date format"
	MsgSkippedValue   = "Skipping invalid vCard extension value"
	MsgFeedSuccess    = "Calendar generation successful"
	MsgAppStarting    = "Starting application"
	MsgServerListen   = "HTTP server listening"
	MsgServerStop     = "Shutting down HTTP server..."
	MsgCacheUpdated   = "Calendar cache updated"
	MsgFetchStart     = "Fetching address book"
	MsgFetchStatus    = "Address book server returned error status"
	MsgFetchOpen      = "Address book download started"
	MsgLocaleSkip     = "Skipping non-locale file"
	MsgLocaleBadName  = "Skipping malformed locale filename"
	MsgLocaleLoaded   = "Locale loaded successfully"
	MsgTransMissing   = "Missing translation key"
	MsgPassFail       = "Password retrieval failed (might be empty)"
	MsgLogWarning     = "Warning: %s at %s: %v\n"
	MsgSessionStarted = "Session started"
	MsgSessionEvent   = "Session transition"
	MsgTouchRecorded  = "Touch recorded"
	MsgStoreOpened    = "Contact store opened"
	MsgMigration      = "Applied database migration"
	MsgSeeded         = "Demo contacts loaded"
	MsgEnvLoaded      = "Environment file loaded"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeySource    = "source"
	LogKeyInterval  = "interval"
	LogKeyUser      = "user"
	LogKeyTotal     = "total_cards"
	LogKeyImported  = "contacts_imported"
	LogKeyEvents    = "events"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyValue     = "value"
	LogKeyStats     = "stats"
	LogKeyCount     = "count"
	LogKeyContactID = "contact_id"
	LogKeyAction    = "action"
	LogKeyState     = "state"
	LogKeyQuery     = "query"
	LogKeyStore     = "store"
	LogKeyPath      = "path"
	LogKeyVersion   = "version"
	LogKeyDuration  = "duration_ms"
	LogKeyLimit     = "limit_bytes"
	LogKeyAddr      = "addr"

	// Startup Info Keys
	LogKeyBuild = "build"
	LogKeyApp   = "app"
	LogKeyGoVer = "go_version"
	LogKeyEnv   = "env"
	LogKeyOS    = "os"
	LogKeyArch  = "arch"
	LogKeyPID   = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompImporter = "importer"
	CompFetcher  = "fetcher"
	CompFeed     = "feed"
	CompServer   = "server"
	CompAPI      = "api"
	CompStore    = "store"
	CompService  = "service"
	CompWorker   = "worker"
	CompMain     = "main"
	CompI18n     = "i18n"
	CompConfig   = "config"
)
