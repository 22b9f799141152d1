package auth

import (
	"strings"

	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"golang.org/x/text/language"
)

// Reason is the identity provider's failure code.
type Reason string

const (
	ReasonUserNotFound         Reason = "auth/user-not-found"
	ReasonWrongPassword        Reason = "auth/wrong-password"
	ReasonInvalidEmail         Reason = "auth/invalid-email"
	ReasonEmailAlreadyInUse    Reason = "auth/email-already-in-use"
	ReasonWeakPassword         Reason = "auth/weak-password"
	ReasonTooManyRequests      Reason = "auth/too-many-requests"
	ReasonRequiresRecentLogin  Reason = "auth/requires-recent-login"
	ReasonInvalidActionCode    Reason = "auth/invalid-action-code"
	ReasonNetworkRequestFailed Reason = "auth/network-request-failed"
)

var reasonCodes = map[Reason]pkgerrors.Code{
	ReasonUserNotFound:         pkgerrors.CodeNotFound,
	ReasonWrongPassword:        pkgerrors.CodeUnauthorized,
	ReasonInvalidEmail:         pkgerrors.CodeValidation,
	ReasonEmailAlreadyInUse:    pkgerrors.CodeConflict,
	ReasonWeakPassword:         pkgerrors.CodeValidation,
	ReasonTooManyRequests:      pkgerrors.CodeRateLimit,
	ReasonRequiresRecentLogin:  pkgerrors.CodeForbidden,
	ReasonInvalidActionCode:    pkgerrors.CodeValidation,
	ReasonNetworkRequestFailed: pkgerrors.CodeDependency,
}

var reasonFields = map[Reason]string{
	ReasonUserNotFound:      "email",
	ReasonInvalidEmail:      "email",
	ReasonEmailAlreadyInUse: "email",
	ReasonWrongPassword:     "password",
	ReasonWeakPassword:      "password",
}

var supportedLocales = []language.Tag{language.English, language.French}

var localeMatcher = language.NewMatcher(supportedLocales)

var messages = map[language.Tag]map[Reason]string{
	language.English: {
		ReasonUserNotFound:         "No account is associated with this email. Check the address or create an account.",
		ReasonWrongPassword:        "Incorrect password.",
		ReasonInvalidEmail:         "Invalid email address.",
		ReasonEmailAlreadyInUse:    "This email is already in use. Sign in or choose another one.",
		ReasonWeakPassword:         "Password is too weak (at least 6 characters).",
		ReasonTooManyRequests:      "Too many attempts. Try again in a few minutes.",
		ReasonRequiresRecentLogin:  "Sign in again, then retry this change.",
		ReasonInvalidActionCode:    "This reset link is invalid or has expired.",
		ReasonNetworkRequestFailed: "Network problem. Try again.",
	},
	language.French: {
		ReasonUserNotFound:         "Aucun compte n’est associé à cet e-mail. Vérifiez l’adresse ou créez un compte.",
		ReasonWrongPassword:        "Mot de passe incorrect.",
		ReasonInvalidEmail:         "Adresse e-mail invalide.",
		ReasonEmailAlreadyInUse:    "Cet email est déjà utilisé. Veuillez vous connecter ou en choisir un autre.",
		ReasonWeakPassword:         "Mot de passe trop faible (min 6 caractères).",
		ReasonTooManyRequests:      "Trop de tentatives. Réessayez dans quelques minutes.",
		ReasonRequiresRecentLogin:  "Pour changer l’e-mail, reconnecte-toi puis réessaie.",
		ReasonInvalidActionCode:    "Lien de réinitialisation invalide ou expiré.",
		ReasonNetworkRequestFailed: "Problème réseau.",
	},
}

var fallbackMessages = map[language.Tag]string{
	language.English: "Something went wrong. Try again.",
	language.French:  "Une erreur est survenue. Réessayez.",
}

// MatchLocale picks the supported locale for an Accept-Language header,
// falling back to def when nothing matches.
func MatchLocale(acceptLanguage string, def language.Tag) language.Tag {
	if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil && len(tags) > 0 {
		if _, idx, conf := localeMatcher.Match(tags...); conf != language.No {
			return supportedLocales[idx]
		}
	}
	_, idx, _ := localeMatcher.Match(def)
	return supportedLocales[idx]
}

// Message returns the user-facing text for r in tag.
func Message(r Reason, tag language.Tag) string {
	_, idx, _ := localeMatcher.Match(tag)
	locale := supportedLocales[idx]
	if msg, ok := messages[locale][r]; ok {
		return msg
	}
	return fallbackMessages[locale]
}

func reasonError(r Reason, cause error) *pkgerrors.Error {
	code, ok := reasonCodes[r]
	if !ok {
		code = pkgerrors.CodeInternal
	}
	msg := Message(r, language.English)
	var err *pkgerrors.Error
	if cause != nil {
		err = pkgerrors.Wrap(code, cause, msg)
	} else {
		err = pkgerrors.New(code, msg)
	}
	return err.WithDetails(reasonDetails(r))
}

func reasonDetails(r Reason) map[string]string {
	details := map[string]string{"reason": string(r)}
	if field, ok := reasonFields[r]; ok {
		details["field"] = field
	}
	return details
}

// ReasonOf extracts the provider reason carried by err.
func ReasonOf(err error) (Reason, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "", false
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		return "", false
	}
	r := Reason(details["reason"])
	if !strings.HasPrefix(string(r), "auth/") {
		return "", false
	}
	return r, true
}

// Localize rewrites the message of a provider error for tag. Other errors
// pass through unchanged.
func Localize(err error, tag language.Tag) error {
	r, ok := ReasonOf(err)
	if !ok {
		return err
	}
	typed := pkgerrors.As(err)
	return pkgerrors.Wrap(typed.Code(), err, Message(r, tag)).WithDetails(typed.Details())
}
