// Copyright (C) 2025 Contour AI (oss@contour-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build ignore

// generate_tool_docs renders a markdown reference for the standard tool
// registry: parameters, defaults, and the session-state fields each tool
// reads and writes.
//
// Usage:
//
//	go run scripts/generate_tool_docs.go > docs/tool_reference.md
package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ContourAI/ContourChat/services/tools"
	"github.com/ContourAI/ContourChat/services/viz"
)

func main() {
	reg := tools.NewRegistry()
	tools.RegisterStandard(reg, viz.NewEngine(), nil)

	specs := reg.Specs()
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	fmt.Println("# Tool Reference")
	fmt.Println()
	fmt.Printf("Generated %s from the standard registry (%d tools).\n",
		time.Now().Format("2006-01-02"), reg.Count())
	fmt.Println()

	for _, spec := range specs {
		fmt.Printf("## %s\n\n%s\n\n", spec.Name, spec.Description)

		if len(spec.Params) > 0 {
			fmt.Println("| Parameter | Type | Required | Default | Description |")
			fmt.Println("|-----------|------|----------|---------|-------------|")
			for _, p := range spec.Params {
				desc := p.Description
				if len(p.Enum) > 0 {
					desc += " One of: " + strings.Join(p.Enum, ", ") + "."
				}
				fmt.Printf("| %s | %s | %s | %s | %s |\n",
					p.Name, p.Type, yesNo(p.Required), orDash(p.Default), desc)
			}
			fmt.Println()
		}

		if len(spec.Reads) > 0 {
			fmt.Printf("Requires: %s\n\n", strings.Join(spec.Reads, ", "))
		}
		if len(spec.Writes) > 0 {
			fmt.Printf("Updates: %s\n\n", strings.Join(spec.Writes, ", "))
		}
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
