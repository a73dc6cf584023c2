package client

import (
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	msgNetwork           = "network"
	msgTimeout           = "timeout"
	msgUnexpected        = "unexpected"
	msgCancelled         = "cancelled"
	msgSessionExpired    = "session_expired"
	msgSessionIdle       = "session_idle"
	msgRedirecting       = "redirecting"
	msgPermissionHint    = "permission_hint"
	msgPermissionDenied  = "permission_denied"
	msgCircuitOpen       = "circuit_open"
	msgAccountLocked     = "account_locked"
	msgAccountLockedHint = "account_locked_hint"
	msgRateLimited       = "rate_limited"
	msgRateLimitedHint   = "rate_limited_hint"
	msgSeconds           = "seconds"
	msgMinutes           = "minutes"
	msgHours             = "hours"
)

// NetworkErrorMessage is the fixed Arabic text for unreachable servers.
const NetworkErrorMessage = "لا يمكن الاتصال بالخادم. يرجى التحقق من اتصال الإنترنت."

var supportedLocales = []language.Tag{language.Arabic, language.English}

var localeMatcher = language.NewMatcher(supportedLocales)

var messages = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Arabic))
	for key, text := range map[string][2]string{
		msgNetwork:           {NetworkErrorMessage, "Cannot reach the server. Please check your internet connection."},
		msgTimeout:           {"انتهت مهلة الطلب. يرجى المحاولة مرة أخرى.", "The request timed out. Please try again."},
		msgUnexpected:        {"حدث خطأ غير متوقع", "An unexpected error occurred"},
		msgCancelled:         {"تم إلغاء الطلب", "Request cancelled"},
		msgSessionExpired:    {"انتهت جلستك. يرجى تسجيل الدخول مرة أخرى", "Your session has ended. Please sign in again"},
		msgSessionIdle:       {"انتهت جلستك بسبب عدم النشاط", "Your session ended due to inactivity"},
		msgRedirecting:       {"جارٍ إعادة التوجيه إلى صفحة تسجيل الدخول...", "Redirecting to the sign-in page..."},
		msgPermissionDenied:  {"ليس لديك صلاحية للوصول إلى هذا المورد", "You do not have permission to access this resource"},
		msgPermissionHint:    {"قد تكون صلاحياتك محدودة. تواصل مع إدارة المكتب للمزيد من المعلومات.", "Your permissions may be limited. Contact your firm administrator for more information."},
		msgCircuitOpen:       {"الخدمة غير متاحة مؤقتاً. يرجى المحاولة بعد %s.", "The service is temporarily unavailable. Please try again in %s."},
		msgAccountLocked:     {"الحساب مقفل مؤقتاً. حاول مرة أخرى بعد %s دقيقة", "The account is temporarily locked. Try again in %s minutes"},
		msgAccountLockedHint: {"يرجى الانتظار %s دقيقة قبل المحاولة مرة أخرى", "Please wait %s minutes before trying again"},
		msgRateLimited:       {"طلبات كثيرة جداً. يرجى الانتظار %s.", "Too many requests. Please wait %s."},
		msgRateLimitedHint:   {"يمكنك المحاولة مرة أخرى بعد %s", "You can try again in %s"},
		msgSeconds:           {"%s ثانية", "%s seconds"},
		msgMinutes:           {"%s دقيقة", "%s minutes"},
		msgHours:             {"%s ساعة", "%s hours"},
	} {
		_ = b.SetString(language.Arabic, key, text[0])
		_ = b.SetString(language.English, key, text[1])
	}
	return b
}()

// localizer renders message keys for one locale. Numbers are passed as
// pre-formatted strings so digits stay Western in every locale.
type localizer struct {
	printer *message.Printer
}

func newLocalizer(tag language.Tag) localizer {
	_, idx, _ := localeMatcher.Match(tag)
	return localizer{printer: message.NewPrinter(supportedLocales[idx], message.Catalog(messages))}
}

func (l localizer) text(key string, args ...any) string {
	return l.printer.Sprintf(key, args...)
}

// FormatRetryAfter renders a wait as seconds under a minute, whole minutes
// (rounded up) under an hour, and whole hours beyond.
func FormatRetryAfter(d time.Duration, tag language.Tag) string {
	return newLocalizer(tag).duration(d)
}

func (l localizer) duration(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 60 {
		return l.text(msgSeconds, strconv.Itoa(seconds))
	}
	minutes := (seconds + 59) / 60
	if minutes < 60 {
		return l.text(msgMinutes, strconv.Itoa(minutes))
	}
	return l.text(msgHours, strconv.Itoa((minutes+59)/60))
}
