package battle

// Errors
var (
	ErrInvalidArgs      = errf("invalid arguments")
	ErrNoRoom           = errf("no room loaded")
	ErrUnknownPlayer    = errf("player not in room")
	ErrPublishThrottled = errf("publish dropped inside debounce window")
	ErrBadExportVersion = errf("unsupported export version")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
