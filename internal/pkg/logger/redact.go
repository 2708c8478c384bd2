package logger

import "strings"

// RedactEmail masks an email address so it is safe to log. The first two
// characters of the local part survive ("jo***@example.com"); local parts of
// two characters or fewer are masked entirely. Anything that doesn't look
// like a single address comes back as "***@***".
func RedactEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 || strings.IndexByte(email[at+1:], '@') >= 0 {
		return "***@***"
	}
	local, host := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + host
	}
	return local[:2] + "***@" + host
}
