// Package encoding implements the variable-width codecs behind
// compressed chunks:
//   - varint: zigzag varint integers for timestamps and lengths
//   - varbit: bucketed delta-of-delta timestamp encoding
//   - varbit xor: leading/trailing-zero aware float XOR encoding
//
// The schemes follow the Facebook Gorilla paper with the bucket
// boundaries adjusted for second-resolution data.
package encoding
