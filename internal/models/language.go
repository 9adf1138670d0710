package models

import (
	"fmt"
	"strings"
)

// Language is the closed set of solution languages accepted by the portal.
type Language string

// Supported languages.
const (
	LanguageC      Language = "C"
	LanguageCPP    Language = "C++"
	LanguageJava   Language = "Java"
	LanguagePython Language = "Python"
)

// LanguageSpec binds a language to its canonical entry-point filename and the
// sandbox image and commands used to build and run a solution. Adding a
// language is a single entry here.
type LanguageSpec struct {
	FileName string
	Image    string
	Compile  []string
	Run      []string
}

var languageTable = map[Language]LanguageSpec{
	LanguageC: {
		FileName: "Main.c",
		Image:    "gcc:13",
		Compile:  []string{"sh", "-c", "gcc Main.c -O2 -o app"},
		Run:      []string{"sh", "-c", "./app < input.txt"},
	},
	LanguageCPP: {
		FileName: "Main.cpp",
		Image:    "gcc:13",
		Compile:  []string{"sh", "-c", "g++ Main.cpp -O2 -o app"},
		Run:      []string{"sh", "-c", "./app < input.txt"},
	},
	LanguageJava: {
		FileName: "Main.java",
		Image:    "eclipse-temurin:21",
		Compile:  []string{"sh", "-c", "javac Main.java"},
		Run:      []string{"sh", "-c", "java Main < input.txt"},
	},
	LanguagePython: {
		FileName: "Main.py",
		Image:    "python:3.11-alpine",
		Run:      []string{"sh", "-c", "python Main.py < input.txt"},
	},
}

// Languages returns the supported languages in a stable order.
func Languages() []Language {
	return []Language{LanguageC, LanguageCPP, LanguageJava, LanguagePython}
}

// Valid reports whether the language is part of the supported set.
func (l Language) Valid() bool {
	_, ok := languageTable[l]
	return ok
}

// Spec returns the execution spec for the language.
func (l Language) Spec() (LanguageSpec, bool) {
	spec, ok := languageTable[l]
	return spec, ok
}

// FileName returns the canonical entry-point filename for the language.
func (l Language) FileName() string {
	return languageTable[l].FileName
}

// LanguageFromFilename resolves a language from a canonical entry-point
// filename such as "Main.py". The match is case-insensitive on the name.
func LanguageFromFilename(name string) (Language, error) {
	trimmed := strings.TrimSpace(name)
	for _, lang := range Languages() {
		if strings.EqualFold(trimmed, lang.FileName()) {
			return lang, nil
		}
	}
	return "", fmt.Errorf("unsupported source filename %q", name)
}
