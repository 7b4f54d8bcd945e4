package project

import "strings"

// Edition is a Rust edition tag, serialized exactly as rust-analyzer's
// rust-project.json format expects: a bare year string.
type Edition string

const (
	Edition2015 Edition = "2015"
	Edition2018 Edition = "2018"
	Edition2021 Edition = "2021"
	Edition2024 Edition = "2024"
)

// CurrentEdition is the edition synthesized scripts are described with:
// 2021, not the newest Edition constant declared above, mirroring
// src/rust_project.rs's `Edition::CURRENT`.
const CurrentEdition = Edition2021

// Dep is a crate-graph edge. The wire field name is "crate" (a dependency's
// index into the enclosing Descriptor.Crates slice), not "krate" — "krate"
// is only the Rust-side identifier avoiding the `crate` keyword.
type Dep struct {
	Crate int    `json:"crate"`
	Name  string `json:"name"`
}

// Crate describes one compilation unit in a rust-project.json-shaped
// descriptor, mirroring src/rust_project.rs's Crate struct field-for-field.
type Crate struct {
	DisplayName        string   `json:"display_name,omitempty"`
	RootModule         string   `json:"root_module"`
	Edition            Edition  `json:"edition"`
	Version            string   `json:"version,omitempty"`
	Deps               []Dep    `json:"deps"`
	Cfg                []string `json:"cfg"`
	Include            []string `json:"include,omitempty"`
	Exclude            []string `json:"exclude,omitempty"`
	IsProcMacro        bool     `json:"is_proc_macro"`
	ProcMacroDylibPath string   `json:"proc_macro_dylib_path,omitempty"`
	Repository         string   `json:"repository,omitempty"`
}

// Descriptor is the rust-project.json-shaped document rscls hands
// rust-analyzer in initializationOptions.linkedProjects, one per tracked
// script, mirroring src/rust_project.rs's RustProject struct.
type Descriptor struct {
	Sysroot    string  `json:"sysroot,omitempty"`
	SysrootSrc string  `json:"sysroot_src,omitempty"`
	Crates     []Crate `json:"crates"`
}

// FallbackDescriptor builds the single-crate descriptor used when the real
// rust-script package hasn't been materialized yet (or rust-script itself
// has nothing more specific to say): one crate, no deps, no proc-macro,
// pointed at rootModule. Mirrors RustProject::fallback_project.
func FallbackDescriptor(sysroot, sysrootSrc, rootModule, crateName string) Descriptor {
	return Descriptor{
		Sysroot:    sysroot,
		SysrootSrc: sysrootSrc,
		Crates: []Crate{
			{
				DisplayName: crateName,
				RootModule:  rootModule,
				Edition:     CurrentEdition,
				Deps:        []Dep{},
				Cfg:         []string{},
				IsProcMacro: false,
			},
		},
	}
}

// EmptyDescriptor is the dummy single descriptor ({"crates": []}) rscls
// injects into linkedProjects when no scripts are registered yet, so
// rust-analyzer doesn't fall back to its own Cargo-workspace discovery over
// whatever directory it was launched in.
func EmptyDescriptor() Descriptor {
	return Descriptor{Crates: []Crate{}}
}

// crateNameForScript derives a synthesized crate's display name from the
// script file's stem, mirroring src/rust_project.rs's file-stem-based
// naming rather than a fixed literal.
func crateNameForScript(scriptPath string) string {
	base := scriptPath
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".rs")
	if base == "" {
		return "script"
	}
	return base
}
