package main

import "github.com/kamilpajak/labsight/cmd/labsight"

func main() {
	labsight.Execute()
}
