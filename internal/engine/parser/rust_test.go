package parser

import (
	"testing"

	"repoctx/internal/engine/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rustPointSource = `use std::collections::HashMap;
use std::io::{self, Read};
use crate::util::*;
use serde::Serialize as Ser;

/// A point in space.
#[derive(Debug, Clone)]
pub struct Point {
    pub x: f64,
    y: f64,
}

pub struct Pair(i32, String);

pub enum Shape {
    Circle(f64),
    Empty,
}

pub trait Area: Debug {
    fn area(&self) -> f64;
}

impl Point {
    pub fn new(x: f64, y: f64) -> Self {
        Self::check(x);
        Point { x, y }
    }

    fn check(v: f64) {}

    pub fn norm(&self) -> f64 {
        self.dot(self)
    }

    fn dot(&self, other: &Point) -> f64 {
        self.x * other.x + self.y * other.y
    }
}

impl Area for Point {
    fn area(&self) -> f64 { 0.0 }
}

impl Display for External {
    fn fmt(&self) {}
}

pub const ORIGIN: i32 = 0;
static mut COUNTER: u32 = 0;

pub async fn run() {
    let p = Point::new(1.0, 2.0);
    helper();
}

fn helper() {}

mod inner {
    fn hidden() {}
}
`

func TestRust_Uses(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "lib.rs", rustPointSource)

	require.Len(t, rec.Imports, 4)
	assert.Equal(t, record.Import{Path: "std::collections", Items: []string{"HashMap"}, Line: 1}, rec.Imports[0])
	assert.Equal(t, "std::io", rec.Imports[1].Path)
	assert.Equal(t, []string{"self", "Read"}, rec.Imports[1].Items)
	assert.Equal(t, "crate::util", rec.Imports[2].Path)
	assert.True(t, rec.Imports[2].IsStarImport)
	assert.Equal(t, "serde::Serialize", rec.Imports[3].Path)
	assert.Equal(t, "Ser", rec.Imports[3].Alias)
}

func TestRust_UseListAliases(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "lib.rs", "use crate::a::{b, c as d};\nuse x::{y as z};\n")

	assert.Equal(t, []record.Import{
		{Path: "crate::a", Items: []string{"b"}, Line: 1},
		{Path: "crate::a", Items: []string{"c"}, Alias: "d", Line: 1},
		{Path: "x", Items: []string{"y"}, Alias: "z", Line: 2},
	}, rec.Imports)
}

func TestRust_TypesAndImpls(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "lib.rs", rustPointSource)

	point := mustType(t, rec, "Point")
	assert.Equal(t, "struct", point.Kind)
	assert.Equal(t, "A point in space.", point.Docstring)
	assert.Equal(t, []string{"derive(Debug, Clone)"}, point.Decorators)
	assert.True(t, point.IsExported)
	assert.Equal(t, []string{"Area"}, point.Embedded)
	require.Len(t, point.Fields, 2)
	assert.Equal(t, "x", point.Fields[0].Name)
	assert.Equal(t, "f64", point.Fields[0].Type)

	names := []string{}
	for _, m := range point.Methods {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"new", "check", "norm", "dot", "area"}, names)

	pair := mustType(t, rec, "Pair")
	assert.Equal(t, []string{"0", "1"}, []string{pair.Fields[0].Name, pair.Fields[1].Name})
	assert.Equal(t, "String", pair.Fields[1].Type)

	shape := mustType(t, rec, "Shape")
	assert.Equal(t, "enum", shape.Kind)
	require.Len(t, shape.Fields, 2)
	assert.Equal(t, "()", shape.Fields[1].Type)

	area := mustType(t, rec, "Area")
	assert.Equal(t, "trait", area.Kind)
	assert.Equal(t, []string{"Debug"}, area.Embedded)
	require.Len(t, area.Methods, 1)
	assert.True(t, area.Methods[0].IsExported)

	external := mustType(t, rec, "External")
	assert.Equal(t, "impl", external.Kind)
	assert.Equal(t, []string{"Display"}, external.Embedded)
	require.Len(t, external.Methods, 1)
	assert.Equal(t, "fmt", external.Methods[0].Name)
}

func TestRust_FunctionsAndCalls(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "lib.rs", rustPointSource)

	newFn := mustFunction(t, rec, "Point.new")
	assert.Equal(t, []record.Parameter{{Name: "x", Type: "f64"}, {Name: "y", Type: "f64"}}, newFn.Parameters)
	assert.Equal(t, []record.Return{{Name: "Self", Kind: record.ReturnNamed}}, newFn.Returns)
	assert.Equal(t, []string{"check"}, newFn.CallsFunctions)
	assert.Equal(t, []string{"run"}, callerNames(newFn))

	check := mustFunction(t, rec, "Point.check")
	assert.Equal(t, []record.Return{{Name: "()", Kind: record.ReturnBuiltin}}, check.Returns)
	assert.False(t, check.IsExported)

	dot := mustFunction(t, rec, "Point.dot")
	require.Len(t, dot.Parameters, 1, "self is not a parameter")
	require.Len(t, dot.CalledBy, 1)
	assert.Equal(t, "norm", dot.CalledBy[0].FunctionName)
	assert.Equal(t, record.CallMethod, dot.CalledBy[0].CallType)

	run := mustFunction(t, rec, "run")
	assert.True(t, run.IsAsync)
	assert.True(t, run.IsExported)
	assert.Equal(t, []string{"new", "helper"}, run.CallsFunctions)

	assert.NotNil(t, findFunction(rec, "hidden"))
}

func TestRust_ConstsAndStatics(t *testing.T) {
	p := newTestParser(t, Options{})
	rec := extractSource(t, p, "lib.rs", rustPointSource)

	require.Len(t, rec.Constants, 1)
	assert.Equal(t, record.Variable{Name: "ORIGIN", Type: "i32", Line: 49, IsExported: true}, rec.Constants[0])
	require.Len(t, rec.Variables, 1)
	assert.Equal(t, "COUNTER", rec.Variables[0].Name)
	assert.False(t, rec.Variables[0].IsExported)
}
