package lot

import "math"

// Spec is the static description of a parcel.
type Spec struct {
	ID     int64
	Stage  int
	Number int
	AreaM2 float64
	Price  int64
}

type stageDef struct {
	size        int
	baseArea    float64
	pricePerM2  int64
	areaStepM2  float64
	areaVariant int
}

// Parcels are numbered consecutively across stages: ids 1..60 are stage 1,
// 61..115 stage 2, and so on. Area varies deterministically inside a stage.
var stages = []stageDef{
	{size: 60, baseArea: 5000, pricePerM2: 5200, areaStepM2: 125, areaVariant: 9},
	{size: 55, baseArea: 5000, pricePerM2: 5600, areaStepM2: 150, areaVariant: 7},
	{size: 50, baseArea: 5200, pricePerM2: 6100, areaStepM2: 160, areaVariant: 6},
	{size: 45, baseArea: 5500, pricePerM2: 6800, areaStepM2: 200, areaVariant: 5},
}

// Total is the number of parcels in the development.
func Total() int {
	n := 0
	for _, s := range stages {
		n += s.size
	}
	return n
}

// Lookup maps a lot id to its stage, number, area and price.
func Lookup(id int64) (Spec, bool) {
	if id < 1 {
		return Spec{}, false
	}
	offset := int64(0)
	for i, s := range stages {
		if id <= offset+int64(s.size) {
			number := int(id - offset)
			area := s.baseArea + float64((number*7)%s.areaVariant)*s.areaStepM2
			price := int64(math.Round(area*float64(s.pricePerM2)/1000)) * 1000
			return Spec{ID: id, Stage: i + 1, Number: number, AreaM2: area, Price: price}, true
		}
		offset += int64(s.size)
	}
	return Spec{}, false
}

// All enumerates every parcel in id order.
func All() []Spec {
	out := make([]Spec, 0, Total())
	for id := int64(1); id <= int64(Total()); id++ {
		s, _ := Lookup(id)
		out = append(out, s)
	}
	return out
}
