// Package xmlmap maps between XML tree content and typed field values
// using a restricted dialect of XPath 1.0 as the binding language.
//
// A model type declares named fields, each bound to an XPath expression
// and a value mapper. Reading a field evaluates its expression against the
// instance's node; writing a field mutates the tree in place, synthesizing
// missing elements and attributes when the expression is simple enough to
// construct (downward child/attribute steps with name tests, plus equality
// and positional predicates). Deleting a field removes its node and cleans
// up ancestors the engine itself would have synthesized, once they hold
// nothing else.
//
// The tree is github.com/antchfx/xmlquery's mutable document model; read
// path matching is delegated to github.com/antchfx/xpath. The package's
// own parser exists for analysis and construction, not evaluation: it
// parses the binding expressions into an AST the constructibility
// analyzer, node synthesizer and remover walk.
//
// Instances and types are safe for concurrent reads; mutation of one
// document is single-writer, like the underlying tree.
package xmlmap
