package scan

// Named charsets used by the built-in profiles and by YAML profiles.

// Digits matches 0-9.
func Digits(b byte) bool { return b >= '0' && b <= '9' }

// Alnum matches ASCII letters and digits.
func Alnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || Digits(b)
}

// UpperAlnum matches uppercase letters and digits, the shape of device
// serial numbers.
func UpperAlnum(b byte) bool {
	return b >= 'A' && b <= 'Z' || Digits(b)
}

// Token matches the URL-safe base64-ish alphabet used by session tokens.
func Token(b byte) bool { return Alnum(b) || b == '_' || b == '-' }

// Email matches bytes legal in an address; the shape check is done by the
// field's validity predicate, the charset only bounds the run.
func Email(b byte) bool {
	return Alnum(b) || b == '@' || b == '.' || b == '_' || b == '%' || b == '+' || b == '-'
}

// URL matches bytes of a plain https URL as found in heap strings.
func URL(b byte) bool {
	return Alnum(b) || b == ':' || b == '/' || b == '.' || b == '-' || b == '_' || b == '%' || b == '?' || b == '=' || b == '&'
}

// UUIDText matches lowercase hex plus dash, the textual RFC 4122 form.
func UUIDText(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b == '-'
}

// Printable matches printable ASCII minus the quote, for free-text values
// captured out of JSON fragments (nicknames, model names).
func Printable(b byte) bool {
	return b >= 0x20 && b < 0x7f && b != '"' && b != '\\'
}

// CharsetByName resolves the names accepted in YAML profiles. Unknown
// names yield nil.
func CharsetByName(name string) Charset {
	switch name {
	case "digits":
		return Digits
	case "alnum":
		return Alnum
	case "upper-alnum":
		return UpperAlnum
	case "token":
		return Token
	case "email":
		return Email
	case "url":
		return URL
	case "uuid":
		return UUIDText
	case "printable":
		return Printable
	}
	return nil
}
