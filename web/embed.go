package web

import "embed"

// StaticFS embeds the expense form: index.html plus its script and styles.
//
//go:embed static/*
var StaticFS embed.FS
