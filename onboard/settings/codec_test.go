package settings

import (
	"math"
	"math/rand"
	"testing"

	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEncode(t *testing.T) {
	Convey("a single entry encodes as TLV", t, func() {
		data, err := Encode(Map{"a": 1})
		So(err, ShouldBeNil)
		So(data, ShouldResemble, []byte{0x01, 'a', 0x01, 0x01})
	})

	Convey("zero still uses one value byte", t, func() {
		data, _ := Encode(Map{"z": 0})
		So(data, ShouldResemble, []byte{0x01, 'z', 0x01, 0x00})
	})

	Convey("values use the minimal big-endian width", t, func() {
		data, _ := Encode(Map{"v": 0x0102})
		So(data, ShouldResemble, []byte{0x01, 'v', 0x02, 0x01, 0x02})

		data, _ = Encode(Map{"v": 0x100})
		So(data, ShouldResemble, []byte{0x01, 'v', 0x02, 0x01, 0x00})

		data, _ = Encode(Map{"v": math.MaxUint64})
		So(data[2], ShouldEqual, 8)
	})

	Convey("only the first character of a key is kept", t, func() {
		data, _ := Encode(Map{"threshold": 7})
		So(data, ShouldResemble, []byte{0x01, 't', 0x01, 0x07})
	})

	Convey("entries are written in key order", t, func() {
		data, _ := Encode(Map{"b": 2, "a": 1})
		So(data, ShouldResemble, []byte{0x01, 'a', 0x01, 0x01, 0x01, 'b', 0x01, 0x02})
	})

	Convey("empty keys are rejected", t, func() {
		_, err := Encode(Map{"": 1})
		So(err, ShouldEqual, ErrEmptyKey)
	})
}

func TestDecode(t *testing.T) {
	Convey("an empty payload is an empty map", t, func() {
		m, err := Decode(nil)
		So(err, ShouldBeNil)
		So(m, ShouldBeEmpty)
	})

	Convey("multiple records decode until the payload is consumed", t, func() {
		m, err := Decode([]byte{0x01, 'a', 0x01, 0x01, 0x01, 'b', 0x02, 0x01, 0x00})
		So(err, ShouldBeNil)
		So(m, ShouldResemble, Map{"a": 1, "b": 256})
	})

	Convey("malformed payloads fail with a protocol error", t, func() {
		cases := [][]byte{
			{0x01},                                       // key missing
			{0x02, 'a'},                                  // key shorter than declared
			{0x01, 'a'},                                  // value length missing
			{0x01, 'a', 0x02, 0x01},                      // value truncated
			{0x01, 'a', 0x00},                            // zero length value
			{0x01, 'a', 0x09, 1, 2, 3, 4, 5, 6, 7, 8, 9}, // wider than uint64
			{0x00, 0x01, 0x05},                           // empty key
			{0x02, 'a', 'b', 0x01, 0x05},                 // key wider than one byte
		}

		for _, c := range cases {
			_, err := Decode(c)
			So(err, ShouldNotBeNil)

			var perr *deverrors.ProtocolError
			So(err, ShouldHaveSameTypeAs, perr)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	Convey("decode inverts encode for single character keys", t, func() {
		rng := rand.New(rand.NewSource(42))
		keys := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

		for i := 0; i < 500; i++ {
			m := make(Map)
			for j := rng.Intn(6); j >= 0; j-- {
				k := string(keys[rng.Intn(len(keys))])
				m[k] = uint64(rng.Int63n(1 << 32))
			}

			data, err := Encode(m)
			So(err, ShouldBeNil)

			decoded, err := Decode(data)
			So(err, ShouldBeNil)
			So(decoded, ShouldResemble, m)
		}
	})

	Convey("boundary values survive the round trip", t, func() {
		m := Map{"a": 0, "b": 0xff, "c": 0x100, "d": 1<<32 - 1, "e": 1 << 32, "f": math.MaxUint64}
		data, _ := Encode(m)
		decoded, err := Decode(data)
		So(err, ShouldBeNil)
		So(decoded, ShouldResemble, m)
	})
}

func BenchmarkEncode(b *testing.B) {
	m := Map{"a": 1, "b": 0x1234}

	for n := 0; n < b.N; n++ {
		Encode(m)
	}
}
