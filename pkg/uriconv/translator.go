package uriconv

import "net/url"

// Resolver is the subset of pkg/project.Cache's API the translator needs:
// the two directions of script-path <-> synthesized-package-path lookup.
// Declared here, rather than importing pkg/project, to keep this package
// free of a dependency on the cache's concurrency internals.
type Resolver interface {
	ScriptPathToProjectPath(scriptPath string) (string, bool)
	ProjectPathToScriptPath(projectPath string) (string, bool)
}

// ClientToServerTranslator rewrites a script's own file:// URI into the
// file:// URI of its synthesized package source, the way rust-analyzer
// expects to see it. Non-file URIs and URIs with no matching registered
// script pass through unchanged, mirroring context.rs's early return on
// any scheme other than "file".
func ClientToServerTranslator(resolver Resolver) TranslateFunc {
	return func(uri string) string {
		u, err := url.Parse(uri)
		if err != nil || u.Scheme != "file" {
			return uri
		}
		projectPath, ok := resolver.ScriptPathToProjectPath(u.Path)
		if !ok {
			return uri
		}
		out := *u
		out.Path = projectPath
		return out.String()
	}
}

// ServerToClientTranslator is the inverse: rewrites a synthesized package
// source's file:// URI back to the script's own URI, for anything
// rust-analyzer reports (diagnostics, hover locations, ...) that points
// inside the package rscls invented.
func ServerToClientTranslator(resolver Resolver) TranslateFunc {
	return func(uri string) string {
		u, err := url.Parse(uri)
		if err != nil || u.Scheme != "file" {
			return uri
		}
		scriptPath, ok := resolver.ProjectPathToScriptPath(u.Path)
		if !ok {
			return uri
		}
		out := *u
		out.Path = scriptPath
		return out.String()
	}
}
