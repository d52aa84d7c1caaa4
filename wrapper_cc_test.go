package main

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

// fakeLibrary stands in for an ILP64 build: every routine takes 64-bit
// integers, and xerbla records its arguments.
const fakeLibrary = `#include <stdint.h>
#include <stddef.h>
#include <string.h>

char last_name[16];
int64_t last_info;

void xerbla_64_(char *srname, int64_t *info, size_t srname_strlen)
{
    memcpy(last_name, srname, srname_strlen);
    last_name[srname_strlen] = 0;
    last_info = *info;
}

void foo_64_(int64_t *n, int64_t *a, int64_t *info)
{
    int64_t i;
    if (*n < 0) {
        *info = -1;
        return;
    }
    for (i = 0; i < *n; ++i) a[i] *= 2;
    *info = 0;
}

void qry_64_(int64_t *n, int64_t *iwork, int64_t *liwork, int64_t *info)
{
    int64_t i;
    *info = 0;
    if (*liwork == -1) {
        iwork[0] = *n > 100 ? 5000000000LL : *n + 1;
        return;
    }
    for (i = 0; i < *n; ++i) iwork[i] = i;
}

void qraw_64_(int64_t *n, int64_t *iwork, int64_t *liwork, int64_t *info)
{
    int64_t i;
    *info = 0;
    if (*liwork == -1) {
        iwork[0] = 2 * *n + 1;
        return;
    }
    for (i = 0; i < *liwork; ++i) iwork[i] = i + 1;
}

int64_t ibig_64_(int64_t *n)
{
    return *n * 3000000000LL;
}
`

const wrapperHarness = `#include <stdio.h>
#include <string.h>
#include <stdint.h>

extern char last_name[16];
extern int64_t last_info;

void foo_(int *n, int *a, int *info);
void qry_(int *n, int *iwork, int *liwork, int *info);
void qraw_(int *n, int *iwork, int *liwork, int *info);
int ibig_(int *n);

int main(void)
{
    int n = 3, a[3] = {1, 2, 3}, info = 99;
    int iwork[4] = {0, 0, 0, 0}, liwork;

    foo_(&n, a, &info);
    if (info != 0 || a[0] != 2 || a[1] != 4 || a[2] != 6) return 1;

    n = -1;
    info = 99;
    foo_(&n, a, &info);
    if (info != -1 || a[0] != 2) return 2;

    n = 1000;
    liwork = -1;
    qry_(&n, iwork, &liwork, &info);
    if (info != -1002 || iwork[0] != 0) return 3;

    n = 4;
    liwork = -1;
    info = 99;
    qry_(&n, iwork, &liwork, &info);
    if (info != 0 || iwork[0] != 5 || liwork != -1) return 7;

    n = 4;
    liwork = 4;
    qry_(&n, iwork, &liwork, &info);
    if (info != 0 || iwork[3] != 3 || liwork != 4) return 4;

    n = 3;
    liwork = -1;
    info = 99;
    iwork[0] = 0;
    qraw_(&n, iwork, &liwork, &info);
    if (info != 0 || iwork[0] != 7 || liwork != -1) return 8;

    liwork = 2;
    qraw_(&n, iwork, &liwork, &info);
    if (info != 0 || iwork[0] != 1 || iwork[1] != 2) return 9;

    n = 0;
    if (ibig_(&n) != 0 || last_info != 0) return 5;
    n = 1;
    if (ibig_(&n) != 0 || last_info != -1002 || strcmp(last_name, "IBIG") != 0) return 6;

    printf("ok\n");
    return 0;
}
`

// TestWrapperRuntime compiles the generated wrappers against a fake ILP64
// library and runs them with the host C compiler.
func TestWrapperRuntime(t *testing.T) {
	compiler := os.Getenv("CC")
	if compiler == "" {
		compiler = "cc"
	}
	path, err := exec.LookPath(compiler)
	if err != nil {
		t.Skipf("no C compiler: %v", err)
	}

	src, err := Generate(testDatabase(fooSignature(), querySignature(), rawQuerySignature(), integerFunctionSignature()), DefaultSymbolMapping())
	require.NoError(t, err)
	dir := fs.NewDir(t, "wrappers",
		fs.WithFile("lapack6432.c", string(src)),
		fs.WithFile("fake.c", fakeLibrary),
		fs.WithFile("main.c", wrapperHarness),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	binary := dir.Join("wrappers")
	build := exec.CommandContext(ctx, path, "-std=c99", "-Wall", "-o", binary,
		dir.Join("lapack6432.c"), dir.Join("fake.c"), dir.Join("main.c"))
	out, err := build.CombinedOutput()
	require.NoError(t, err, string(out))

	out, err = exec.CommandContext(ctx, binary).CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Equal(t, "ok", strings.TrimSpace(string(out)))
}
