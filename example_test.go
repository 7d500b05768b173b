package pkgload_test

import (
	"fmt"

	"github.com/meigma/pkgload"
	"github.com/meigma/pkgload/format"
)

func ExampleKey() {
	fmt.Println(pkgload.Key("/content/Maps/Level01.upk"))
	fmt.Println(pkgload.Key(`C:\Game\Core.u`))
	// Output:
	// Level01
	// Core
}

func ExampleLoader_LoadCachedPackageBytes() {
	data, err := format.Encode(format.Spec{Name: "Core"})
	if err != nil {
		panic(err)
	}

	l := pkgload.New()
	a, _ := l.LoadCachedPackageBytes("/a/Core.upk", data)
	b, _ := l.LoadCachedPackageBytes("/b/Core.upk", nil) // hit: bytes ignored
	fmt.Println(a == b, a.Name(), a.Stage())
	// Output: true Core header parsed
}
