package main

import (
	"path/filepath"
	"sync"

	"github.com/consensys/bavard"
)

const copyrightHolder = "Consensys Software Inc."

var bgen = bavard.NewBatchGenerator(copyrightHolder, 2025, "gnark-air/internal/generator")

type templateData struct {
	RootPath string
	Package  string
	Display  string
	Modulus  string
}

//go:generate go run main.go
func main() {
	babybear := templateData{
		RootPath: "../../field/babybear/",
		Package:  "babybear",
		Display:  "BabyBear",
		Modulus:  "p = 2³¹ - 2²⁷ + 1",
	}
	koalabear := templateData{
		RootPath: "../../field/koalabear/",
		Package:  "koalabear",
		Display:  "KoalaBear",
		Modulus:  "p = 2³¹ - 2²⁴ + 1",
	}

	var wg sync.WaitGroup
	for _, d := range []templateData{babybear, koalabear} {
		wg.Add(1)
		go func(d templateData) {
			defer wg.Done()
			entries := []bavard.Entry{
				{File: filepath.Join(d.RootPath, "element.go"), Templates: []string{"element.go.tmpl"}},
			}
			if err := bgen.Generate(d, d.Package, "./template/", entries...); err != nil {
				panic(err)
			}
		}(d)
	}
	wg.Wait()
}
