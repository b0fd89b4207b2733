package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
)

// promptRootPassword asks for and confirms a password with masked
// terminal input, falling back to a plain line read when stdin is not a
// terminal (e.g. piped input in tests or CI).
func promptRootPassword() (string, error) {
	fmt.Print("Set a password for the root account: ")
	first, err := readSecret()
	if err != nil {
		return "", err
	}
	fmt.Print("Confirm password: ")
	second, err := readSecret()
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errs.Invalidf("passwords do not match")
	}
	if len(first) < 6 {
		return "", errs.Invalidf("password must be at least 6 characters")
	}
	return first, nil
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", errs.Internalf(err, "reading password")
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", errs.Internalf(err, "reading password")
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
