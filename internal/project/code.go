package project

import (
	"fmt"
	"strings"
	"unicode"
)

const codePrefixLen = 3

// GenerateCode builds the public project code: the first three letters or
// digits of the developer name in upper case, padded with X, followed by the
// zero-padded project id. "Skyline Builders", 42 gives "SKY-00042".
func GenerateCode(developerName string, id int64) string {
	var b strings.Builder
	for _, r := range developerName {
		if b.Len() == codePrefixLen {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	prefix := b.String() + strings.Repeat("X", codePrefixLen-b.Len())
	return fmt.Sprintf("%s-%05d", prefix, id)
}
