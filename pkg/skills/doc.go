// Package skills holds the compiled-in skills. Importing it registers them
// with plugin.Builtins so a .skill.json manifest can bind them by name.
package skills
