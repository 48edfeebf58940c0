// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snaplink

// CalculateCRC computes the CRC-16-CCITT (0x1021, init 0xFFFF) of data.
// The same checksum protects each packet and each reassembled frame.
func CalculateCRC(data []byte) uint16 {
	return UpdateCRC(crcInitial, data)
}

// UpdateCRC continues a CRC over more data
func UpdateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
