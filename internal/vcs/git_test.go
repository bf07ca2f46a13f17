// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDiff_ClassifiesAddedModifiedDeleted(t *testing.T) {
	diff := `diff --git a/new.cpp b/new.cpp
new file mode 100644
index 0000000..abc
--- /dev/null
+++ b/new.cpp
@@ -0,0 +1 @@
+int foo() {}
diff --git a/changed.cpp b/changed.cpp
index abc..def 100644
--- a/changed.cpp
+++ b/changed.cpp
@@ -1 +1 @@
-int foo() {}
+int foo() { return 1; }
diff --git a/removed.cpp b/removed.cpp
deleted file mode 100644
index abc..0000000
--- a/removed.cpp
+++ /dev/null
@@ -1 +0,0 @@
-int bar() {}
`
	cl := parseDiff(diff)
	byPath := make(map[string]ChangelistItemAction)
	for _, item := range cl.Items {
		byPath[item.Filepath] = item.Action
	}

	assert.Equal(t, Added, byPath["new.cpp"])
	assert.Equal(t, Modified, byPath["changed.cpp"])
	assert.Equal(t, Deleted, byPath["removed.cpp"])
}

func TestParseDiff_DeduplicatesRepeatedHeaders(t *testing.T) {
	diff := `diff --git a/a.cpp b/a.cpp
index abc..def 100644
--- a/a.cpp
+++ b/a.cpp
@@ -1 +1 @@
-x
+y
diff --git a/a.cpp b/a.cpp
index abc..def 100644
--- a/a.cpp
+++ b/a.cpp
@@ -2 +2 @@
-x
+y
`
	cl := parseDiff(diff)
	assert.Len(t, cl.Items, 1)
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, Added, actionFor("A"))
	assert.Equal(t, Added, actionFor("??"))
	assert.Equal(t, Deleted, actionFor("D"))
	assert.Equal(t, Modified, actionFor("M"))
	assert.Equal(t, Modified, actionFor("R095"))
	assert.Equal(t, Modified, actionFor(""))
}

func TestStripBOM(t *testing.T) {
	withBOM := "﻿hello"
	assert.Equal(t, "hello", stripBOM(withBOM))
	assert.Equal(t, "hello", stripBOM("hello"))
}

func TestToGitPath(t *testing.T) {
	assert.Equal(t, "src/a.cpp", toGitPath("src/a.cpp"))
}
